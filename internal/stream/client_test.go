package stream_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/courtside/internal/domain/match"
	"github.com/okian/courtside/internal/stream"
	"github.com/okian/courtside/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

const waitTimeout = 2 * time.Second

// feedServer accepts websocket clients, records the payloads they send and
// the errors their connections end with.
type feedServer struct {
	srv      *httptest.Server
	accepted chan *websocket.Conn
	payloads chan match.ConnectPayload
	closes   chan error
	// upgradeDelay holds the handshake open, in nanoseconds.
	upgradeDelay atomic.Int64
}

func newFeedServer() *feedServer {
	s := &feedServer{
		accepted: make(chan *websocket.Conn, 16),
		payloads: make(chan match.ConnectPayload, 16),
		closes:   make(chan error, 16),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Duration(s.upgradeDelay.Load()))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.accepted <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				s.closes <- err
				return
			}
			var p match.ConnectPayload
			if json.Unmarshal(data, &p) == nil {
				s.payloads <- p
			}
		}
	}))
	return s
}

func (s *feedServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *feedServer) nextConn() *websocket.Conn {
	select {
	case c := <-s.accepted:
		return c
	case <-time.After(waitTimeout):
		return nil
	}
}

func (s *feedServer) nextPayload() (match.ConnectPayload, bool) {
	select {
	case p := <-s.payloads:
		return p, true
	case <-time.After(waitTimeout):
		return match.ConnectPayload{}, false
	}
}

func frame(kind match.Type, data map[string]any) []byte {
	b, _ := json.Marshal(map[string]any{"type": kind, "data": data, "timestamp": "2024-05-01T20:00:00Z"})
	return b
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

type recorder[T any] struct {
	mu  sync.Mutex
	got []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	r.got = append(r.got, v)
	r.mu.Unlock()
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.got...)
}

func (r *recorder[T]) len() int { return len(r.all()) }

func customPayload(home string) *match.ConnectPayload {
	p := match.DefaultPayload()
	p.Team1.Name = home
	return p
}

func TestConnect(t *testing.T) {
	Convey("Given a feed server and a client", t, func() {
		fs := newFeedServer()
		defer fs.srv.Close()
		c := stream.New(fs.url())
		defer c.Close()

		Convey("Two connects in a row open one connection and send the default payload once", func() {
			So(c.Connect(nil), ShouldBeNil)
			So(c.Connect(nil), ShouldBeNil)

			So(fs.nextConn() != nil, ShouldBeTrue)
			p, ok := fs.nextPayload()
			So(ok, ShouldBeTrue)
			So(p.Team1.Name, ShouldEqual, "ANADOLU EFES")
			So(p.Team2.Name, ShouldEqual, "FENERBAHCE")
			So(p.Team1.Players, ShouldHaveLength, 5)

			select {
			case <-fs.accepted:
				So("second connection", ShouldBeEmpty)
			case <-fs.payloads:
				So("second payload", ShouldBeEmpty)
			case <-time.After(200 * time.Millisecond):
			}
			So(c.State(), ShouldEqual, stream.Connected)
		})

		Convey("A payload given while the dial is in flight replaces the default", func() {
			fs.upgradeDelay.Store(int64(100 * time.Millisecond))
			So(c.Connect(nil), ShouldBeNil)
			So(c.State(), ShouldEqual, stream.Connecting)
			So(c.Connect(customPayload("QUEUED")), ShouldBeNil)

			So(fs.nextConn() != nil, ShouldBeTrue)
			p, ok := fs.nextPayload()
			So(ok, ShouldBeTrue)
			So(p.Team1.Name, ShouldEqual, "QUEUED")

			select {
			case <-fs.accepted:
				So("second connection", ShouldBeEmpty)
			case extra := <-fs.payloads:
				So(extra.Team1.Name, ShouldBeEmpty)
			case <-time.After(200 * time.Millisecond):
			}
		})

		Convey("A payload given while connected goes out on the open connection", func() {
			So(c.Connect(nil), ShouldBeNil)
			So(fs.nextConn() != nil, ShouldBeTrue)
			_, ok := fs.nextPayload()
			So(ok, ShouldBeTrue)
			So(eventually(func() bool { return c.State() == stream.Connected }), ShouldBeTrue)

			So(c.Connect(customPayload("HOME FIVE")), ShouldBeNil)
			p, ok := fs.nextPayload()
			So(ok, ShouldBeTrue)
			So(p.Team1.Name, ShouldEqual, "HOME FIVE")

			select {
			case <-fs.accepted:
				So("second connection", ShouldBeEmpty)
			case <-time.After(100 * time.Millisecond):
			}
		})

		Convey("Connect after Close fails", func() {
			So(c.Close(), ShouldBeNil)
			So(errors.Is(c.Connect(nil), stream.ErrClosed), ShouldBeTrue)
		})
	})

	Convey("Given nothing listening", t, func() {
		fs := newFeedServer()
		url := fs.url()
		fs.srv.Close()

		c := stream.New(url, stream.WithDialTimeout(500*time.Millisecond))
		defer c.Close()
		states := &recorder[stream.State]{}
		c.SubscribeState(states.add)

		Convey("A failed dial without a reconnect policy ends disconnected", func() {
			So(c.Connect(nil), ShouldBeNil)
			So(eventually(func() bool {
				got := states.all()
				return len(got) >= 3 && got[len(got)-1] == stream.Disconnected
			}), ShouldBeTrue)
			So(states.all()[:2], ShouldResemble, []stream.State{stream.Disconnected, stream.Connecting})
		})
	})
}

func TestSubscribers(t *testing.T) {
	Convey("Given a connected client", t, func() {
		fs := newFeedServer()
		defer fs.srv.Close()
		c := stream.New(fs.url())
		defer c.Close()

		So(c.Connect(nil), ShouldBeNil)
		server := fs.nextConn()
		So(server != nil, ShouldBeTrue)
		_, ok := fs.nextPayload()
		So(ok, ShouldBeTrue)

		send := func(b []byte) {
			So(server.WriteMessage(websocket.TextMessage, b), ShouldBeNil)
		}

		Convey("Undecodable frames are dropped and the stream continues", func() {
			events := &recorder[match.Event]{}
			c.SubscribeEvents(events.add)

			send([]byte("not json"))
			send([]byte(`{"data":{}}`))
			send(frame(match.TypeGameStart, map[string]any{"team1_name": "A", "team2_name": "B"}))

			So(eventually(func() bool { return events.len() == 1 }), ShouldBeTrue)
			gs, ok := events.all()[0].(match.GameStart)
			So(ok, ShouldBeTrue)
			So(gs.Team1Name, ShouldEqual, "A")
		})

		Convey("Events arrive in order", func() {
			events := &recorder[match.Event]{}
			c.SubscribeEvents(events.add)

			send(frame(match.TypeGameStart, nil))
			send(frame(match.TypeQuarterStart, map[string]any{"quarter": 1}))
			send(frame(match.TypeScore, map[string]any{"points": 2}))

			So(eventually(func() bool { return events.len() == 3 }), ShouldBeTrue)
			got := events.all()
			So(got[0].Type(), ShouldEqual, match.TypeGameStart)
			So(got[1].Type(), ShouldEqual, match.TypeQuarterStart)
			So(got[2].Type(), ShouldEqual, match.TypeScore)
		})

		Convey("A panicking subscriber does not stop the others", func() {
			second := &recorder[match.Event]{}
			c.SubscribeEvents(func(match.Event) { panic("boom") })
			c.SubscribeEvents(second.add)

			send(frame(match.TypeGameStart, nil))
			send(frame(match.TypeGameEnd, nil))

			So(eventually(func() bool { return second.len() == 2 }), ShouldBeTrue)
		})

		Convey("Unsubscribing inside a callback does not skip siblings", func() {
			first := &recorder[match.Event]{}
			second := &recorder[match.Event]{}
			var unsub func()
			unsub = c.SubscribeEvents(func(ev match.Event) {
				first.add(ev)
				unsub()
				unsub()
			})
			c.SubscribeEvents(second.add)

			send(frame(match.TypeGameStart, nil))
			So(eventually(func() bool { return second.len() == 1 }), ShouldBeTrue)

			send(frame(match.TypeGameEnd, nil))
			So(eventually(func() bool { return second.len() == 2 }), ShouldBeTrue)
			c.Sync()
			So(first.len(), ShouldEqual, 1)
		})

		Convey("A new state subscriber first hears the current state", func() {
			So(eventually(func() bool { return c.State() == stream.Connected }), ShouldBeTrue)
			states := &recorder[stream.State]{}
			c.SubscribeState(states.add)
			c.Sync()
			So(states.all(), ShouldResemble, []stream.State{stream.Connected})
		})
	})
}

func TestDisconnect(t *testing.T) {
	Convey("Given a connected client", t, func() {
		fs := newFeedServer()
		defer fs.srv.Close()
		c := stream.New(fs.url())
		defer c.Close()

		So(c.Connect(nil), ShouldBeNil)
		So(fs.nextConn() != nil, ShouldBeTrue)
		_, ok := fs.nextPayload()
		So(ok, ShouldBeTrue)

		Convey("Disconnect sends a normal closure", func() {
			c.Disconnect()
			So(c.State(), ShouldEqual, stream.Disconnected)

			var err error
			select {
			case err = <-fs.closes:
			case <-time.After(waitTimeout):
			}
			var ce *websocket.CloseError
			So(errors.As(err, &ce), ShouldBeTrue)
			So(ce.Code, ShouldEqual, websocket.CloseNormalClosure)
			So(ce.Text, ShouldEqual, "User disconnected")
		})

		Convey("Connect after Disconnect opens a fresh connection", func() {
			c.Disconnect()
			So(c.Connect(customPayload("AGAIN")), ShouldBeNil)
			So(fs.nextConn() != nil, ShouldBeTrue)
			p, ok := fs.nextPayload()
			So(ok, ShouldBeTrue)
			So(p.Team1.Name, ShouldEqual, "AGAIN")
		})

		Convey("Disconnecting twice is harmless", func() {
			c.Disconnect()
			c.Disconnect()
			So(c.State(), ShouldEqual, stream.Disconnected)
		})
	})
}

func TestReconnect(t *testing.T) {
	Convey("Given a client with a reconnect policy", t, func() {
		fs := newFeedServer()
		defer fs.srv.Close()
		c := stream.New(fs.url(), stream.WithReconnect(stream.ReconnectPolicy{
			MaxRetries: 3,
			Initial:    10 * time.Millisecond,
			Max:        50 * time.Millisecond,
		}))
		defer c.Close()
		states := &recorder[stream.State]{}
		c.SubscribeState(states.add)

		So(c.Connect(customPayload("RETRY FIVE")), ShouldBeNil)
		server := fs.nextConn()
		So(server != nil, ShouldBeTrue)
		_, ok := fs.nextPayload()
		So(ok, ShouldBeTrue)

		Convey("A dropped connection is reopened with the last payload", func() {
			So(server.Close(), ShouldBeNil)

			So(fs.nextConn() != nil, ShouldBeTrue)
			p, ok := fs.nextPayload()
			So(ok, ShouldBeTrue)
			So(p.Team1.Name, ShouldEqual, "RETRY FIVE")

			So(eventually(func() bool { return c.State() == stream.Connected }), ShouldBeTrue)
			So(states.all(), ShouldContain, stream.Reconnecting)
		})

		Convey("Disconnect cancels reconnection", func() {
			c.Disconnect()
			select {
			case <-fs.accepted:
				So("reconnected", ShouldBeEmpty)
			case <-time.After(150 * time.Millisecond):
			}
			So(c.State(), ShouldEqual, stream.Disconnected)
		})
	})
}

func TestReconnectPolicy(t *testing.T) {
	Convey("Delay doubles per attempt up to the cap", t, func() {
		p := stream.ReconnectPolicy{MaxRetries: 5, Initial: 100 * time.Millisecond, Max: time.Second}
		So(p.Enabled(), ShouldBeTrue)
		So(p.Delay(1), ShouldEqual, 100*time.Millisecond)
		So(p.Delay(2), ShouldEqual, 200*time.Millisecond)
		So(p.Delay(4), ShouldEqual, 800*time.Millisecond)
		So(p.Delay(5), ShouldEqual, time.Second)
		So(p.Delay(60), ShouldEqual, time.Second)
	})

	Convey("Jitter stays within its fraction", t, func() {
		p := stream.ReconnectPolicy{MaxRetries: 1, Initial: time.Second, Jitter: 0.25}
		for i := 0; i < 50; i++ {
			d := p.Delay(1)
			So(d, ShouldBeBetweenOrEqual, 750*time.Millisecond, 1250*time.Millisecond)
		}
	})

	Convey("The zero policy never retries", t, func() {
		So(stream.ReconnectPolicy{}.Enabled(), ShouldBeFalse)
	})

	Convey("States render as names", t, func() {
		b, err := json.Marshal(map[string]stream.State{"s": stream.Reconnecting})
		So(err, ShouldBeNil)
		So(string(b), ShouldEqual, `{"s":"reconnecting"}`)
	})
}
