// Package service wires the roster store, the live event stream, the
// interpreter and the roster reconciler into one match session that the HTTP
// API serves.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/courtside/internal/adapters/repository"
	"github.com/okian/courtside/internal/domain/interpret"
	"github.com/okian/courtside/internal/domain/match"
	"github.com/okian/courtside/internal/domain/presentation"
	"github.com/okian/courtside/internal/domain/roster"
	"github.com/okian/courtside/internal/reconcile"
	"github.com/okian/courtside/internal/stream"
	"github.com/okian/courtside/pkg/dispatch"
	"github.com/okian/courtside/pkg/logger"
)

const defaultLogHistory = 200

// RosterStore is the persistence the session needs: the reconcile contract
// plus the user profile.
type RosterStore interface {
	reconcile.Store
	FetchMe(ctx context.Context) (repository.User, error)
}

// Feed is the live event source. *stream.Client satisfies it.
type Feed interface {
	Connect(payload *match.ConnectPayload) error
	Disconnect()
	State() stream.State
	SubscribeEvents(fn func(match.Event)) (unsubscribe func())
	SubscribeState(fn func(stream.State)) (unsubscribe func())
}

// UpdateKind tells live view clients what changed.
type UpdateKind string

const (
	UpdateEvent UpdateKind = "event"
	UpdateState UpdateKind = "state"
	UpdateReset UpdateKind = "reset"
)

// Update is pushed to view subscribers for every event and state change.
// Seq grows by one per update; a MatchView with the same or a higher Seq
// already includes it.
type Update struct {
	Seq        uint64             `json:"seq"`
	Kind       UpdateKind         `json:"kind"`
	State      stream.State       `json:"state"`
	Result     *interpret.Result  `json:"result,omitempty"`
	Scoreboard presentation.Panel `json:"scoreboard"`
	Clock      string             `json:"clock"`
	Lineup     *match.Lineup      `json:"lineup,omitempty"`
}

// MatchView is a full snapshot of the match screen.
type MatchView struct {
	Seq        uint64               `json:"seq"`
	MatchID    string               `json:"matchId"`
	State      stream.State         `json:"state"`
	Scoreboard presentation.Panel   `json:"scoreboard"`
	Clock      string               `json:"clock"`
	Lineup     match.Lineup         `json:"lineup"`
	Log        []interpret.LogEntry `json:"log"`
	Over       bool                 `json:"over"`
	Winner     string               `json:"winner,omitempty"`
}

// Session is safe for concurrent use.
type Session struct {
	store      RosterStore
	feed       Feed
	interp     *interpret.Interpreter
	reconciler *reconcile.Reconciler
	chat       *presentation.Chat
	views      *dispatch.Serial
	logger     logger.Logger

	homeTeam     string
	awayTeam     string
	opponentSeed uint64
	logHistory   int
	reconcileOpt []reconcile.Option
	now          func() time.Time

	mu       sync.Mutex
	started  bool
	user     repository.User
	opponent []roster.Slot
	matchID  string
	state    stream.State
	lineup   match.Lineup
	panel    presentation.Panel
	log      []interpret.LogEntry
	over     bool
	winner   string
	seq      uint64
	subs     map[uint64]func(Update)
	nextSub  uint64
	unsubs   []func()
}

// Option applies a configuration option to the Session.
type Option func(*Session)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHomeTeam overrides the home name, which defaults to the username.
func WithHomeTeam(name string) Option {
	return func(s *Session) { s.homeTeam = name }
}

// WithAwayTeam overrides the opponent name.
func WithAwayTeam(name string) Option {
	return func(s *Session) {
		if name != "" {
			s.awayTeam = name
		}
	}
}

// WithOpponentSeed fixes the dummy opponent. Zero picks one from the clock.
func WithOpponentSeed(seed uint64) Option {
	return func(s *Session) { s.opponentSeed = seed }
}

// WithLogHistory caps the retained play-by-play lines.
func WithLogHistory(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.logHistory = n
		}
	}
}

// WithInterpreter replaces the default interpreter.
func WithInterpreter(i *interpret.Interpreter) Option {
	return func(s *Session) {
		if i != nil {
			s.interp = i
		}
	}
}

// WithReconcilerOptions passes options through to the roster reconciler.
func WithReconcilerOptions(opts ...reconcile.Option) Option {
	return func(s *Session) { s.reconcileOpt = append(s.reconcileOpt, opts...) }
}

// WithClock sets the time source for chat and calendar.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSession builds a session over store and feed. Call Start before use.
func NewSession(store RosterStore, feed Feed, opts ...Option) *Session {
	s := &Session{
		store:      store,
		feed:       feed,
		awayTeam:   presentation.DefaultAwayTeam,
		logHistory: defaultLogHistory,
		now:        time.Now,
		subs:       make(map[uint64]func(Update)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("session")
	}
	if s.interp == nil {
		s.interp = interpret.New(interpret.WithLogger(s.logger.Named("interpret")))
	}
	s.reconcileOpt = append([]reconcile.Option{reconcile.WithLogger(s.logger.Named("reconcile"))}, s.reconcileOpt...)
	s.reconciler = reconcile.New(store, s.reconcileOpt...)
	s.chat = presentation.NewChat(s.now)
	s.views = dispatch.NewSerial(dispatch.WithPanicHandler(func(v any) {
		s.logger.Error(context.Background(), "view dispatch panicked", logger.Any("panic", v))
	}))
	return s
}

// Start loads the user and roster, starts persisting swaps and listens to the
// feed. It does not connect; see StartMatch.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	user, err := s.store.FetchMe(ctx)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if err := s.reconciler.Load(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	s.reconciler.Start()

	seed := s.opponentSeed
	if seed == 0 {
		seed = uint64(s.now().UnixNano()) //nolint:gosec // seed only
	}

	s.mu.Lock()
	s.started = true
	s.user = user
	s.opponent = presentation.DummyOpponent(seed)
	s.resetLocked()
	s.mu.Unlock()

	unsubEvents := s.feed.SubscribeEvents(s.onEvent)
	unsubState := s.feed.SubscribeState(s.onState)

	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsubEvents, unsubState)
	s.mu.Unlock()

	s.logger.Info(ctx, "session started",
		logger.String("user", user.Username),
		logger.String("home", s.homeName()),
		logger.String("away", s.awayTeam),
	)
	return nil
}

// Stop disconnects the feed and drains pending roster writes, up to ctx.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	s.feed.Disconnect()
	err := s.reconciler.Stop(ctx)
	s.views.Close()
	s.logger.Info(ctx, "session stopped")
	return err
}

func (s *Session) homeName() string {
	if s.homeTeam != "" {
		return s.homeTeam
	}
	return s.user.Username
}

// resetLocked starts a fresh match view from the current starters.
func (s *Session) resetLocked() {
	starters := s.reconciler.View().Starters
	s.matchID = uuid.NewString()
	s.lineup = match.BuildLineup(starters, s.opponent)
	s.panel = presentation.NewPanel(s.homeName(), s.awayTeam, starters, s.opponent)
	s.log = nil
	s.over = false
	s.winner = ""
}

// StartMatch resets the match view to the current starters against the
// opponent and connects the feed with both teams.
func (s *Session) StartMatch(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.resetLocked()
	lineup := s.lineup
	payload := lineup.Payload(s.homeName(), s.awayTeam)
	update := s.updateLocked(UpdateReset, nil)
	update.Lineup = &lineup
	s.publishLocked(update)
	matchID := s.matchID
	s.mu.Unlock()

	if err := s.feed.Connect(payload); err != nil {
		return fmt.Errorf("start match: %w", err)
	}
	s.logger.Info(ctx, "match started",
		logger.String("match_id", matchID),
		logger.Int("home_players", len(lineup.Home)),
		logger.Int("away_players", len(lineup.Away)),
	)
	return nil
}

// EndMatch disconnects the feed. The final view stays readable.
func (s *Session) EndMatch() {
	s.feed.Disconnect()
}

func (s *Session) onEvent(ev match.Event) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	res := s.interp.Interpret(ev, s.lineup)
	s.log = append(s.log, res.Log)
	if over := len(s.log) - s.logHistory; over > 0 {
		s.log = append([]interpret.LogEntry(nil), s.log[over:]...)
	}
	if res.Scoreboard != nil {
		s.panel = s.panel.Apply(*res.Scoreboard)
	}
	if end, ok := ev.(match.GameEnd); ok {
		s.over = true
		s.winner = end.Winner
		s.panel.HomeScore, s.panel.AwayScore = end.Team1Score, end.Team2Score
	}
	s.publishLocked(s.updateLocked(UpdateEvent, &res))
	s.mu.Unlock()
}

func (s *Session) onState(st stream.State) {
	s.mu.Lock()
	s.state = st
	s.publishLocked(s.updateLocked(UpdateState, nil))
	s.mu.Unlock()
}

func (s *Session) updateLocked(kind UpdateKind, res *interpret.Result) Update {
	s.seq++
	return Update{
		Seq:        s.seq,
		Kind:       kind,
		State:      s.state,
		Result:     res,
		Scoreboard: s.panel,
		Clock:      s.panel.Clock(),
	}
}

func (s *Session) subscribersLocked() []func(Update) {
	out := make([]func(Update), 0, len(s.subs))
	for id := uint64(0); id < s.nextSub; id++ {
		if fn, ok := s.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

// publishLocked hands u to the view dispatcher. Submitting under s.mu keeps
// delivery in the order the view changed, whichever goroutine changed it.
func (s *Session) publishLocked(u Update) {
	subs := s.subscribersLocked()
	s.views.Submit(func() { s.publish(subs, u) })
}

func (s *Session) publish(subs []func(Update), u Update) {
	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error(context.Background(), "view subscriber panicked", logger.Any("panic", r))
				}
			}()
			fn(u)
		}()
	}
}

// SubscribeView registers fn for live updates, in subscription order.
func (s *Session) SubscribeView(fn func(Update)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// MatchView returns a snapshot of the match screen.
func (s *Session) MatchView() MatchView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return MatchView{
		Seq:        s.seq,
		MatchID:    s.matchID,
		State:      s.state,
		Scoreboard: s.panel,
		Clock:      s.panel.Clock(),
		Lineup:     s.lineup,
		Log:        append([]interpret.LogEntry(nil), s.log...),
		Over:       s.over,
		Winner:     s.winner,
	}
}

// User returns the profile loaded at Start.
func (s *Session) User() repository.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Opponent returns the dummy opponent's starters.
func (s *Session) Opponent() []roster.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]roster.Slot(nil), s.opponent...)
}

// Roster returns the reconciled roster view.
func (s *Session) Roster() roster.View { return s.reconciler.View() }

// Selected returns the slot picked by the first click of a click-swap.
func (s *Session) Selected() (roster.SlotRef, bool) { return s.reconciler.Selected() }

// Click selects a slot, or swaps with the selected one. It reports whether a
// swap was proposed.
func (s *Session) Click(ref roster.SlotRef) (bool, error) { return s.reconciler.Click(ref) }

// Drop proposes a drag-and-drop swap.
func (s *Session) Drop(from, to roster.SlotRef) error { return s.reconciler.Drop(from, to) }

// SubscribeRoster registers fn for roster view changes.
func (s *Session) SubscribeRoster(fn func(roster.View)) (unsubscribe func()) {
	return s.reconciler.Subscribe(fn)
}

// Refresh reloads the confirmed roster, e.g. after a direct store write.
// Swaps still pending persist replay on top.
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.reconciler.Load(ctx); err != nil {
		return fmt.Errorf("refresh roster: %w", err)
	}
	return nil
}

// Flush waits for pending roster writes, up to ctx, and for view updates
// published so far to reach their subscribers.
func (s *Session) Flush(ctx context.Context) error {
	if err := s.reconciler.Flush(ctx); err != nil {
		return err
	}
	s.views.Sync()
	return nil
}

// Chat returns the chat log.
func (s *Session) Chat() *presentation.Chat { return s.chat }

// Salary returns the cap panel for the reconciled roster.
func (s *Session) Salary() presentation.Salary { return presentation.SalaryOf(s.reconciler.View()) }

// Fixtures returns this month's calendar.
func (s *Session) Fixtures() presentation.Calendar { return presentation.Month(s.now()) }

// Stats returns session statistics for monitoring.
func (s *Session) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"started":      s.started,
		"matchId":      s.matchID,
		"feedState":    s.state.String(),
		"logLines":     len(s.log),
		"viewSubs":     len(s.subs),
		"pendingSwaps": s.reconciler.Pending(),
		"matchOver":    s.over,
		"homeTeam":     s.homeName(),
		"awayTeam":     s.awayTeam,
	}
}
