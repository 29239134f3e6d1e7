package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/courtside/internal/adapters/repository"
	service "github.com/okian/courtside/internal/app"
	"github.com/okian/courtside/internal/domain/interpret"
	"github.com/okian/courtside/internal/domain/match"
	"github.com/okian/courtside/internal/domain/roster"
	"github.com/okian/courtside/internal/stream"
	"github.com/okian/courtside/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fakeFeed delivers events and states synchronously on the caller's
// goroutine.
type fakeFeed struct {
	mu       sync.Mutex
	payloads []*match.ConnectPayload
	state    stream.State
	events   []func(match.Event)
	states   []func(stream.State)
	drops    int
}

func (f *fakeFeed) Connect(p *match.ConnectPayload) error {
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	f.mu.Unlock()
	f.setState(stream.Connected)
	return nil
}

func (f *fakeFeed) Disconnect() {
	f.mu.Lock()
	f.drops++
	f.mu.Unlock()
	f.setState(stream.Disconnected)
}

func (f *fakeFeed) State() stream.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeFeed) SubscribeEvents(fn func(match.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fn)
	i := len(f.events) - 1
	return func() {
		f.mu.Lock()
		f.events[i] = nil
		f.mu.Unlock()
	}
}

func (f *fakeFeed) SubscribeState(fn func(stream.State)) func() {
	f.mu.Lock()
	f.states = append(f.states, fn)
	i := len(f.states) - 1
	st := f.state
	f.mu.Unlock()
	fn(st)
	return func() {
		f.mu.Lock()
		f.states[i] = nil
		f.mu.Unlock()
	}
}

func (f *fakeFeed) setState(st stream.State) {
	f.mu.Lock()
	f.state = st
	subs := append(([]func(stream.State))(nil), f.states...)
	f.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(st)
		}
	}
}

func (f *fakeFeed) emit(frame string) {
	ev, err := match.Decode([]byte(frame))
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	subs := append(([]func(match.Event))(nil), f.events...)
	f.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(ev)
		}
	}
}

func (f *fakeFeed) lastPayload() *match.ConnectPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return nil
	}
	return f.payloads[len(f.payloads)-1]
}

func seededStore(t *testing.T) *repository.Store {
	t.Helper()
	ctx := context.Background()
	s, err := repository.Open(ctx, filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSession(t *testing.T) {
	Convey("Given a started session over a seeded store", t, func() {
		ctx := context.Background()
		feed := &fakeFeed{}
		s := service.NewSession(seededStore(t), feed,
			service.WithOpponentSeed(7),
			service.WithLogHistory(3),
			service.WithClock(func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) }),
		)
		So(s.Start(ctx), ShouldBeNil)
		defer func() { _ = s.Stop(ctx) }()

		Convey("The scoreboard starts at tip-off with the username as home", func() {
			v := s.MatchView()
			So(v.Scoreboard.HomeTeam, ShouldEqual, "Lent")
			So(v.Scoreboard.AwayTeam, ShouldEqual, "Warriors")
			So(v.Clock, ShouldEqual, "12:00")
			So(v.Scoreboard.Quarter, ShouldEqual, 1)
			So(v.State, ShouldEqual, stream.Disconnected)
		})

		Convey("StartMatch connects with the starters against the opponent", func() {
			So(s.StartMatch(ctx), ShouldBeNil)
			p := feed.lastPayload()
			So(p, ShouldNotBeNil)
			So(p.Team1.Name, ShouldEqual, "Lent")
			So(p.Team1.Players, ShouldHaveLength, 5)
			So(p.Team1.Players[0].Name, ShouldEqual, "A. Iverson")
			So(p.Team1.Players[0].ID, ShouldEqual, 1)
			So(p.Team1.Players[0].Attack, ShouldEqual, 98)
			So(p.Team2.Name, ShouldEqual, "Warriors")
			So(p.Team2.Players, ShouldHaveLength, 5)
			So(p.Team2.Players[0].ID, ShouldEqual, 6)
			So(s.MatchView().State, ShouldEqual, stream.Connected)
		})

		Convey("Events update the log, scoreboard and triggers", func() {
			So(s.StartMatch(ctx), ShouldBeNil)
			var updates []service.Update
			unsub := s.SubscribeView(func(u service.Update) { updates = append(updates, u) })
			defer unsub()

			feed.emit(`{"type":"score","timestamp":"2024-05-10T12:00:01Z","data":{"scorer_id":1,"scorer_name":"A. Iverson","points":3,"team1_score":3,"team2_score":0,"quarter":1,"time_remaining_formatted":"11:42"}}`)

			v := s.MatchView()
			So(v.Log, ShouldHaveLength, 1)
			So(v.Scoreboard.HomeScore, ShouldEqual, 3)
			So(v.Clock, ShouldEqual, "11:42")

			So(s.Flush(ctx), ShouldBeNil)
			So(updates, ShouldHaveLength, 1)
			So(updates[0].Seq, ShouldEqual, v.Seq)
			So(updates[0].Kind, ShouldEqual, service.UpdateEvent)
			So(updates[0].Result.Triggers, ShouldHaveLength, 1)
			So(updates[0].Result.Triggers[0].Kind, ShouldEqual, interpret.KindScore)
			So(updates[0].Result.Triggers[0].Target.Slot, ShouldEqual, 0)
		})

		Convey("The log keeps only the newest lines", func() {
			for i := 0; i < 5; i++ {
				feed.emit(`{"type":"turnover","data":{"team":"team1"}}`)
			}
			So(s.MatchView().Log, ShouldHaveLength, 3)
		})

		Convey("game_end marks the match over with the winner", func() {
			feed.emit(`{"type":"game_end","data":{"winner":"Lent","team1_score":88,"team2_score":80}}`)
			v := s.MatchView()
			So(v.Over, ShouldBeTrue)
			So(v.Winner, ShouldEqual, "Lent")
			So(v.Scoreboard.HomeScore, ShouldEqual, 88)
		})

		Convey("A panicking view subscriber does not stop the others", func() {
			got := 0
			s.SubscribeView(func(service.Update) { panic("boom") })
			s.SubscribeView(func(service.Update) { got++ })
			feed.emit(`{"type":"game_start","data":{}}`)
			So(s.Flush(ctx), ShouldBeNil)
			So(got, ShouldEqual, 1)
		})

		Convey("A roster drop is reconciled and reaches the next match", func() {
			So(s.Drop(roster.SlotRef{Location: roster.Starter, Slot: 0}, roster.SlotRef{Location: roster.Bench, Slot: 0}), ShouldBeNil)
			So(s.Roster().Starters[0].Player.Name, ShouldEqual, "Bench 1")
			So(s.Flush(ctx), ShouldBeNil)

			So(s.StartMatch(ctx), ShouldBeNil)
			So(feed.lastPayload().Team1.Players[0].Name, ShouldEqual, "Bench 1")
		})

		Convey("Click twice swaps", func() {
			swapped, err := s.Click(roster.SlotRef{Location: roster.Starter, Slot: 1})
			So(err, ShouldBeNil)
			So(swapped, ShouldBeFalse)
			_, ok := s.Selected()
			So(ok, ShouldBeTrue)

			swapped, err = s.Click(roster.SlotRef{Location: roster.Bench, Slot: 3})
			So(err, ShouldBeNil)
			So(swapped, ShouldBeTrue)
			So(s.Roster().Starters[1].Player.Name, ShouldEqual, "Bench 4")
		})

		Convey("Salary and fixtures are derived from the roster and clock", func() {
			sal := s.Salary()
			So(sal.Max, ShouldEqual, "100000000")
			So(sal.OverCap, ShouldBeFalse)
			cal := s.Fixtures()
			So(cal.Fixtures, ShouldHaveLength, 1)
			So(cal.Fixtures[0].Date, ShouldEqual, "2024-05-18")
		})

		Convey("Updates from the HTTP and feed goroutines arrive in change order", func() {
			var mu sync.Mutex
			var got []service.Update
			unsub := s.SubscribeView(func(u service.Update) {
				mu.Lock()
				got = append(got, u)
				mu.Unlock()
			})
			defer unsub()

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 20; i++ {
					feed.emit(`{"type":"turnover","data":{"team":"team1"}}`)
				}
			}()
			So(s.StartMatch(ctx), ShouldBeNil)
			wg.Wait()
			So(s.Flush(ctx), ShouldBeNil)

			mu.Lock()
			defer mu.Unlock()
			So(len(got), ShouldBeGreaterThanOrEqualTo, 22)
			resets := 0
			for i, u := range got {
				if u.Kind == service.UpdateReset {
					resets++
				}
				if i > 0 {
					So(u.Seq, ShouldEqual, got[i-1].Seq+1)
				}
			}
			So(resets, ShouldEqual, 1)
			So(got[len(got)-1].Seq, ShouldEqual, s.MatchView().Seq)
		})

		Convey("EndMatch disconnects but keeps the view", func() {
			So(s.StartMatch(ctx), ShouldBeNil)
			feed.emit(`{"type":"game_state","data":{"team1_score":2,"team2_score":2,"quarter":2,"time_remaining_formatted":"05:00"}}`)
			s.EndMatch()
			v := s.MatchView()
			So(v.State, ShouldEqual, stream.Disconnected)
			So(v.Scoreboard.Quarter, ShouldEqual, 2)
		})
	})

	Convey("StartMatch before Start fails", t, func() {
		s := service.NewSession(seededStore(t), &fakeFeed{})
		So(s.StartMatch(context.Background()), ShouldEqual, service.ErrNotStarted)
	})
}
