package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/courtside/internal/adapters/http/api"
	"github.com/okian/courtside/internal/adapters/repository"
	service "github.com/okian/courtside/internal/app"
	"github.com/okian/courtside/internal/domain/match"
	"github.com/okian/courtside/internal/stream"
	"github.com/okian/courtside/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type stubFeed struct {
	mu     sync.Mutex
	state  stream.State
	events []func(match.Event)
	states []func(stream.State)
}

func (f *stubFeed) Connect(*match.ConnectPayload) error {
	f.set(stream.Connected)
	return nil
}

func (f *stubFeed) Disconnect() { f.set(stream.Disconnected) }

func (f *stubFeed) State() stream.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *stubFeed) SubscribeEvents(fn func(match.Event)) func() {
	f.mu.Lock()
	f.events = append(f.events, fn)
	f.mu.Unlock()
	return func() {}
}

func (f *stubFeed) SubscribeState(fn func(stream.State)) func() {
	f.mu.Lock()
	f.states = append(f.states, fn)
	st := f.state
	f.mu.Unlock()
	fn(st)
	return func() {}
}

func (f *stubFeed) set(st stream.State) {
	f.mu.Lock()
	f.state = st
	subs := append(([]func(stream.State))(nil), f.states...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
}

func (f *stubFeed) emit(frame string) {
	ev, err := match.Decode([]byte(frame))
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	subs := append(([]func(match.Event))(nil), f.events...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func openStore(t *testing.T, seed bool) *repository.Store {
	t.Helper()
	ctx := context.Background()
	s, err := repository.Open(ctx, filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if seed {
		if err := s.Seed(ctx); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(rec *httptest.ResponseRecorder) map[string]any {
	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return out
}

func TestRosterRoutes(t *testing.T) {
	Convey("Given a server over a seeded store", t, func() {
		ctx := context.Background()
		store := openStore(t, true)
		feed := &stubFeed{}
		sess := service.NewSession(store, feed, service.WithOpponentSeed(3))
		So(sess.Start(ctx), ShouldBeNil)
		defer func() { _ = sess.Stop(ctx) }()
		srv := api.NewServer(store, sess)
		defer srv.Close()
		h := srv.Router()

		Convey("GET /api/me returns the user with money as a string", func() {
			rec := do(h, http.MethodGet, "/api/me", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			body := decode(rec)
			So(body["username"], ShouldEqual, "Lent")
			So(body["money"], ShouldEqual, "3965000")
			So(body["xpToNext"], ShouldEqual, float64(1000))
		})

		Convey("GET /api/roster returns starters and bench", func() {
			rec := do(h, http.MethodGet, "/api/roster", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			body := decode(rec)
			So(body["starters"], ShouldHaveLength, 5)
			So(body["bench"], ShouldHaveLength, 8)
		})

		Convey("POST /api/roster/swap persists and refreshes the session", func() {
			rec := do(h, http.MethodPost, "/api/roster/swap",
				`{"from":{"location":"starter","slot":0},"to":{"location":"BENCH","slot":0}}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode(rec)["ok"], ShouldEqual, true)
			So(sess.Roster().Starters[0].Player.Name, ShouldEqual, "Bench 1")
		})

		Convey("A malformed swap body is a 400", func() {
			rec := do(h, http.MethodPost, "/api/roster/swap", `{`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(rec)["error"], ShouldEqual, "Invalid body")
		})

		Convey("An unknown location is a 400", func() {
			rec := do(h, http.MethodPost, "/api/roster/swap",
				`{"from":{"location":"COURT","slot":0},"to":{"location":"BENCH","slot":0}}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(rec)["error"], ShouldEqual, "Invalid slots")
		})

		Convey("A missing slot is a 400", func() {
			rec := do(h, http.MethodPost, "/api/roster/swap",
				`{"from":{"location":"STARTER","slot":0},"to":{"location":"BENCH","slot":42}}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(rec)["error"], ShouldEqual, "Invalid slots")
		})

		Convey("Two lineup clicks swap optimistically", func() {
			rec := do(h, http.MethodPost, "/api/lineup/click", `{"location":"STARTER","slot":2}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode(rec)["swapped"], ShouldEqual, false)

			rec = do(h, http.MethodPost, "/api/lineup/click", `{"location":"BENCH","slot":1}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode(rec)["swapped"], ShouldEqual, true)
			So(sess.Roster().Starters[2].Player.Name, ShouldEqual, "Bench 2")
		})

		Convey("A lineup drop returns the new lineup", func() {
			rec := do(h, http.MethodPost, "/api/lineup/drop",
				`{"from":{"location":"STARTER","slot":4},"to":{"location":"BENCH","slot":7}}`)
			So(rec.Code, ShouldEqual, http.StatusAccepted)
			starters := decode(rec)["starters"].([]any)
			So(starters, ShouldHaveLength, 5)
			So(sess.Flush(ctx), ShouldBeNil)
		})
	})

	Convey("Given a server over an empty store", t, func() {
		store := openStore(t, false)
		sess := service.NewSession(store, &stubFeed{})
		srv := api.NewServer(store, sess)
		defer srv.Close()
		h := srv.Router()

		Convey("GET /api/me is a 404", func() {
			rec := do(h, http.MethodGet, "/api/me", "")
			So(rec.Code, ShouldEqual, http.StatusNotFound)
			So(decode(rec)["error"], ShouldEqual, "No user")
		})

		Convey("GET /api/roster is a 404", func() {
			rec := do(h, http.MethodGet, "/api/roster", "")
			So(rec.Code, ShouldEqual, http.StatusNotFound)
			So(decode(rec)["error"], ShouldEqual, "No roster")
		})

		Convey("A swap without a roster is a 404", func() {
			rec := do(h, http.MethodPost, "/api/roster/swap",
				`{"from":{"location":"STARTER","slot":0},"to":{"location":"BENCH","slot":0}}`)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
			So(decode(rec)["error"], ShouldEqual, "No roster")
		})

		Convey("Starting a match before the session is a 503", func() {
			rec := do(h, http.MethodPost, "/api/match/start", "")
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decode(rec)["code"], ShouldEqual, "unavailable")
		})
	})
}

func TestMatchRoutes(t *testing.T) {
	Convey("Given a started session", t, func() {
		ctx := context.Background()
		store := openStore(t, true)
		feed := &stubFeed{}
		sess := service.NewSession(store, feed,
			service.WithOpponentSeed(3),
			service.WithClock(func() time.Time { return time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC) }),
		)
		So(sess.Start(ctx), ShouldBeNil)
		defer func() { _ = sess.Stop(ctx) }()
		srv := api.NewServer(store, sess)
		defer srv.Close()
		h := srv.Router()

		Convey("POST /api/match/start connects the feed", func() {
			rec := do(h, http.MethodPost, "/api/match/start", "")
			So(rec.Code, ShouldEqual, http.StatusAccepted)
			So(decode(rec)["state"], ShouldEqual, "connected")
			So(feed.State(), ShouldEqual, stream.Connected)

			rec = do(h, http.MethodPost, "/api/match/stop", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(feed.State(), ShouldEqual, stream.Disconnected)
		})

		Convey("Chat posts default to the session user", func() {
			rec := do(h, http.MethodPost, "/api/chat", `{"message":"  go team "}`)
			So(rec.Code, ShouldEqual, http.StatusCreated)
			body := decode(rec)
			So(body["username"], ShouldEqual, "Lent")
			So(body["message"], ShouldEqual, "go team")

			rec = do(h, http.MethodGet, "/api/chat", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			var msgs []map[string]any
			So(json.Unmarshal(rec.Body.Bytes(), &msgs), ShouldBeNil)
			So(msgs[len(msgs)-1]["message"], ShouldEqual, "go team")
		})

		Convey("An empty chat message is a 400", func() {
			rec := do(h, http.MethodPost, "/api/chat", `{"message":"   "}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(rec)["error"], ShouldEqual, "Empty message")
		})

		Convey("Salary, fixtures and opponent render", func() {
			rec := do(h, http.MethodGet, "/api/salary", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode(rec)["max"], ShouldEqual, "100000000")

			rec = do(h, http.MethodGet, "/api/fixtures", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode(rec)["fixtures"], ShouldHaveLength, 1)

			rec = do(h, http.MethodGet, "/api/opponent", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode(rec)["starters"], ShouldHaveLength, 5)
		})

		Convey("healthz and stats respond", func() {
			So(do(h, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
			rec := do(h, http.MethodGet, "/stats", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")
		})

		Convey("The live view sends a snapshot then updates", func() {
			ts := httptest.NewServer(h)
			defer ts.Close()

			url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/match/ws"
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			So(err, ShouldBeNil)
			defer conn.Close()
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

			var first map[string]any
			So(conn.ReadJSON(&first), ShouldBeNil)
			So(first["kind"], ShouldEqual, "snapshot")
			So(first["view"], ShouldNotBeNil)

			feed.emit(`{"type":"score","data":{"scorer_id":2,"scorer_name":"K. Bryant","points":2,"team1_score":2,"team2_score":0,"quarter":1,"time_remaining_formatted":"11:30"}}`)

			var next map[string]any
			So(conn.ReadJSON(&next), ShouldBeNil)
			So(next["kind"], ShouldEqual, "event")
			So(next["clock"], ShouldEqual, "11:30")
		})

		Convey("A live client resumes right after its snapshot", func() {
			ts := httptest.NewServer(h)
			defer ts.Close()

			feed.emit(`{"type":"score","data":{"scorer_id":2,"scorer_name":"K. Bryant","points":2,"team1_score":2,"team2_score":0,"quarter":1,"time_remaining_formatted":"11:30"}}`)

			url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/match/ws"
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			So(err, ShouldBeNil)
			defer conn.Close()
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

			var first struct {
				Kind string `json:"kind"`
				View struct {
					Seq   float64 `json:"seq"`
					Clock string  `json:"clock"`
				} `json:"view"`
			}
			So(conn.ReadJSON(&first), ShouldBeNil)
			So(first.Kind, ShouldEqual, "snapshot")
			So(first.View.Clock, ShouldEqual, "11:30")

			feed.emit(`{"type":"game_state","data":{"team1_score":2,"team2_score":0,"quarter":1,"time_remaining_formatted":"10:15"}}`)

			var next map[string]any
			So(conn.ReadJSON(&next), ShouldBeNil)
			So(next["seq"], ShouldEqual, first.View.Seq+1)
			So(next["clock"], ShouldEqual, "10:15")
		})
	})
}
