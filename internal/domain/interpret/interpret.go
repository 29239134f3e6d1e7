// Package interpret turns game events into what the match view shows: a log
// line, scoreboard updates and per-player animation triggers.
package interpret

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/courtside/internal/domain/match"
	"github.com/okian/courtside/pkg/logger"
	"github.com/okian/courtside/pkg/metrics"
)

// Kind is the animation a trigger plays.
type Kind string

const (
	KindScore  Kind = "score"
	KindAssist Kind = "assist"
	KindBlock  Kind = "block"
	KindFoul   Kind = "foul"
)

// Target is the displayed entity an event actor resolved to.
type Target struct {
	Side     match.Side `json:"side"`
	Slot     int        `json:"slot"`
	EntityID int        `json:"entityId"`
	Name     string     `json:"name"`
}

// Trigger fires one animation. Key is unique per trigger so identical events
// still retrigger.
type Trigger struct {
	Key    uint64 `json:"key"`
	Kind   Kind   `json:"kind"`
	Target Target `json:"target"`
	Points int    `json:"points,omitempty"`
}

// LogEntry is one line of the play-by-play.
type LogEntry struct {
	ID        string     `json:"id"`
	Type      match.Type `json:"type"`
	Text      string     `json:"text"`
	Timestamp time.Time  `json:"timestamp"`
}

// Scoreboard is the live score and clock. Home is team1.
type Scoreboard struct {
	HomeScore     int    `json:"homeScore"`
	AwayScore     int    `json:"awayScore"`
	Quarter       int    `json:"quarter"`
	TimeRemaining string `json:"timeRemaining"`
}

// Result is everything one event produces. Scoreboard is nil when the event
// does not move the clock.
type Result struct {
	Log        LogEntry    `json:"log"`
	Scoreboard *Scoreboard `json:"scoreboard,omitempty"`
	Triggers   []Trigger   `json:"triggers,omitempty"`
}

// Interpreter is safe for concurrent use.
type Interpreter struct {
	keys         atomic.Uint64
	seq          atomic.Int64
	nameFallback bool
	logger       logger.Logger
}

// New creates an Interpreter.
func New(opts ...Option) *Interpreter {
	i := &Interpreter{
		nameFallback: true,
		logger:       logger.Get().Named("interpret"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Interpret renders ev against the lineup currently on court.
func (i *Interpreter) Interpret(ev match.Event, lineup match.Lineup) Result {
	idx := i.seq.Add(1) - 1
	res := Result{
		Log: LogEntry{
			ID:        ev.Stamp() + "-" + strconv.FormatInt(idx, 10),
			Type:      ev.Type(),
			Text:      Describe(ev),
			Timestamp: ev.Time(),
		},
	}

	if ce, ok := ev.(match.ClockEvent); ok {
		c := ce.Scoreboard()
		res.Scoreboard = &Scoreboard{
			HomeScore:     c.Team1Score,
			AwayScore:     c.Team2Score,
			Quarter:       c.Quarter,
			TimeRemaining: c.TimeRemaining,
		}
		metrics.RecordScoreboardUpdate()
	}

	switch e := ev.(type) {
	case match.Score:
		key := i.nextKeys(2)
		if t, ok := i.resolve(e.Scorer(), lineup, e.Type()); ok {
			res.Triggers = append(res.Triggers, Trigger{Key: key, Kind: KindScore, Target: t, Points: e.Points})
		}
		if e.Assist {
			a := e.Assister()
			if a.HasID() || a.Name != "" {
				if t, ok := i.resolve(a, lineup, e.Type()); ok {
					res.Triggers = append(res.Triggers, Trigger{Key: key + 1, Kind: KindAssist, Target: t})
				}
			}
		}
	case match.Block:
		key := i.nextKeys(1)
		if t, ok := i.resolve(e.Blocker(), lineup, e.Type()); ok {
			res.Triggers = append(res.Triggers, Trigger{Key: key, Kind: KindBlock, Target: t})
		}
	case match.Foul:
		key := i.nextKeys(1)
		if t, ok := i.resolve(e.Fouler(), lineup, e.Type()); ok {
			res.Triggers = append(res.Triggers, Trigger{Key: key, Kind: KindFoul, Target: t})
		}
	}

	for _, t := range res.Triggers {
		metrics.RecordTrigger(string(t.Kind))
	}
	return res
}

// nextKeys reserves n consecutive keys and returns the first.
func (i *Interpreter) nextKeys(n uint64) uint64 {
	return i.keys.Add(n) - n + 1
}

// Resolve finds the entity an actor refers to: id match on home then away,
// then exact name on home then away.
func (i *Interpreter) Resolve(a match.Actor, lineup match.Lineup) (Target, bool) {
	if a.HasID() {
		for _, side := range [][]match.Entity{lineup.Home, lineup.Away} {
			for _, e := range side {
				if e.ID == *a.ID {
					return targetOf(e), true
				}
			}
		}
	}
	if i.nameFallback && a.Name != "" {
		for _, side := range [][]match.Entity{lineup.Home, lineup.Away} {
			for _, e := range side {
				if e.Name == a.Name {
					return targetOf(e), true
				}
			}
		}
	}
	return Target{}, false
}

func (i *Interpreter) resolve(a match.Actor, lineup match.Lineup, t match.Type) (Target, bool) {
	target, ok := i.Resolve(a, lineup)
	if !ok {
		metrics.RecordUnresolvedActor(string(t))
		fields := []logger.Field{logger.String("type", string(t)), logger.String("name", a.Name)}
		if a.HasID() {
			fields = append(fields, logger.Int("id", *a.ID))
		}
		i.logger.Debug(context.Background(), "actor not on court", fields...)
	}
	return target, ok
}

func targetOf(e match.Entity) Target {
	return Target{Side: e.Side, Slot: e.Slot, EntityID: e.ID, Name: e.Name}
}
