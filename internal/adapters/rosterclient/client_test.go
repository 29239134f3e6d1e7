package rosterclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/okian/courtside/internal/adapters/repository"
	"github.com/okian/courtside/internal/adapters/rosterclient"
	"github.com/okian/courtside/internal/domain/roster"
	"github.com/okian/courtside/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type swapBody struct {
	From roster.SlotRef `json:"from"`
	To   roster.SlotRef `json:"to"`
}

func newServer(hasRoster bool) (*httptest.Server, *[]swapBody) {
	var swaps []swapBody
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("/api/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"username": "Lent", "level": 5, "xp": 732, "xpToNext": 1000, "money": "3965000",
		})
	})
	mux.HandleFunc("/api/roster", func(w http.ResponseWriter, r *http.Request) {
		if !hasRoster {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "No roster"})
			return
		}
		writeJSON(w, http.StatusOK, roster.View{
			Starters: []roster.Slot{
				{Location: roster.Starter, Slot: 1, Player: roster.Player{ID: "p2", Name: "Two"}},
				{Location: roster.Starter, Slot: 0, Player: roster.Player{ID: "p1", Name: "One"}},
			},
			Bench: []roster.Slot{{Location: roster.Bench, Slot: 0, Player: roster.Player{ID: "p3", Name: "Three"}}},
		})
	})
	mux.HandleFunc("/api/roster/swap", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body swapBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid body"})
			return
		}
		if body.To.Slot > 10 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid slots"})
			return
		}
		if body.To.Slot == 9 {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "db down"})
			return
		}
		swaps = append(swaps, body)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	return httptest.NewServer(mux), &swaps
}

func TestClient(t *testing.T) {
	Convey("Given a roster server", t, func() {
		ctx := context.Background()
		srv, swaps := newServer(true)
		defer srv.Close()
		c := rosterclient.New(srv.URL+"/", rosterclient.WithRateLimit(100, 10))

		Convey("FetchMe parses the decimal money string", func() {
			u, err := c.FetchMe(ctx)
			So(err, ShouldBeNil)
			So(u.Username, ShouldEqual, "Lent")
			So(u.Money, ShouldEqual, int64(3965000))
		})

		Convey("FetchRoster sorts by slot", func() {
			v, err := c.FetchRoster(ctx)
			So(err, ShouldBeNil)
			So(v.Starters[0].Player.Name, ShouldEqual, "One")
			So(v.Bench, ShouldHaveLength, 1)
		})

		Convey("SwapSlots posts the pair", func() {
			from := roster.SlotRef{Location: roster.Starter, Slot: 0}
			to := roster.SlotRef{Location: roster.Bench, Slot: 2}
			So(c.SwapSlots(ctx, from, to), ShouldBeNil)
			So(*swaps, ShouldResemble, []swapBody{{From: from, To: to}})
		})

		Convey("A 400 maps to an invalid slot", func() {
			err := c.SwapSlots(ctx, roster.SlotRef{Location: roster.Starter}, roster.SlotRef{Location: roster.Bench, Slot: 42})
			So(errors.Is(err, roster.ErrInvalidSlot), ShouldBeTrue)
		})

		Convey("Other statuses are unexpected", func() {
			err := c.SwapSlots(ctx, roster.SlotRef{Location: roster.Starter}, roster.SlotRef{Location: roster.Bench, Slot: 9})
			So(errors.Is(err, rosterclient.ErrUnexpectedStatus), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "db down")
		})

		Convey("A cancelled context fails before the request", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := c.FetchRoster(cctx)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a server with no roster", t, func() {
		srv, _ := newServer(false)
		defer srv.Close()
		c := rosterclient.New(srv.URL)

		_, err := c.FetchRoster(context.Background())
		So(errors.Is(err, repository.ErrNoRoster), ShouldBeTrue)
	})
}
