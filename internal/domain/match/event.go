// Package match models the live match feed: inbound game events as a closed
// set of variants, and the outbound connect payload describing both teams.
package match

import "time"

// Type is the wire name of an event.
type Type string

const (
	TypeGameStart    Type = "game_start"
	TypeQuarterStart Type = "quarter_start"
	TypeGameState    Type = "game_state"
	TypeScore        Type = "score"
	TypeMiss         Type = "miss"
	TypeBlock        Type = "block"
	TypeFoul         Type = "foul"
	TypeFreeThrow    Type = "free_throw"
	TypeTurnover     Type = "turnover"
	TypeQuarterEnd   Type = "quarter_end"
	TypeGameEnd      Type = "game_end"
	TypeError        Type = "error"
)

// Scoreboard defaults applied when a clock-carrying event omits them.
const (
	DefaultQuarter       = 1
	DefaultTimeRemaining = "12:00"
)

// Envelope is the wire shape of one inbound frame.
type Envelope struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}

// Event is one decoded game event. The set of implementations is closed;
// switch on the concrete type.
type Event interface {
	Type() Type
	Stamp() string
	Time() time.Time
	Envelope() Envelope
	sealed()
}

// Header carries what every event shares.
type Header struct {
	kind  Type
	stamp string
	at    time.Time
	data  map[string]any
}

func (h Header) Type() Type      { return h.kind }
func (h Header) Stamp() string   { return h.stamp }
func (h Header) Time() time.Time { return h.at }

// Envelope returns the event as it arrived.
func (h Header) Envelope() Envelope {
	return Envelope{Type: string(h.kind), Data: h.data, Timestamp: h.stamp}
}

func (Header) sealed() {}

// Clock is the scoreboard state some events carry.
type Clock struct {
	Team1Score    int    `mapstructure:"team1_score"`
	Team2Score    int    `mapstructure:"team2_score"`
	Quarter       int    `mapstructure:"quarter"`
	TimeRemaining string `mapstructure:"time_remaining_formatted"`
}

// Scoreboard exposes the clock. Events that embed Clock update the live
// scoreboard.
func (c Clock) Scoreboard() Clock { return c }

// ClockEvent is implemented by events that move the scoreboard.
type ClockEvent interface {
	Event
	Scoreboard() Clock
}

// Actor is the player an event is about.
type Actor struct {
	ID   *int
	Name string
	Team string
}

// HasID reports whether the event supplied a numeric id.
func (a Actor) HasID() bool { return a.ID != nil }

type GameStart struct {
	Header    `mapstructure:"-"`
	Team1Name string `mapstructure:"team1_name"`
	Team2Name string `mapstructure:"team2_name"`
}

type QuarterStart struct {
	Header    `mapstructure:"-"`
	Clock     `mapstructure:",squash"`
	Team1Name string `mapstructure:"team1_name"`
	Team2Name string `mapstructure:"team2_name"`
}

type GameState struct {
	Header     `mapstructure:"-"`
	Clock      `mapstructure:",squash"`
	Possession string `mapstructure:"possession"`
}

type Score struct {
	Header       `mapstructure:"-"`
	Clock        `mapstructure:",squash"`
	ScorerID     *int   `mapstructure:"scorer_id"`
	ScorerName   string `mapstructure:"scorer_name"`
	ScorerTeam   string `mapstructure:"scorer_team"`
	Points       int    `mapstructure:"points"`
	Assist       bool   `mapstructure:"assist"`
	AssisterID   *int   `mapstructure:"assister_id"`
	AssisterName string `mapstructure:"assister_name"`
}

func (s Score) Scorer() Actor { return Actor{ID: s.ScorerID, Name: s.ScorerName, Team: s.ScorerTeam} }

// Assister is only meaningful when Assist is set.
func (s Score) Assister() Actor { return Actor{ID: s.AssisterID, Name: s.AssisterName} }

type Miss struct {
	Header      `mapstructure:"-"`
	ShooterID   *int   `mapstructure:"shooter_id"`
	ShooterName string `mapstructure:"shooter_name"`
	ShooterTeam string `mapstructure:"shooter_team"`
}

type Block struct {
	Header      `mapstructure:"-"`
	BlockerID   *int   `mapstructure:"blocker_id"`
	BlockerName string `mapstructure:"blocker_name"`
	BlockerTeam string `mapstructure:"blocker_team"`
	ShooterName string `mapstructure:"shooter_name"`
}

func (b Block) Blocker() Actor { return Actor{ID: b.BlockerID, Name: b.BlockerName, Team: b.BlockerTeam} }

type Foul struct {
	Header       `mapstructure:"-"`
	FoulerID     *int   `mapstructure:"fouler_id"`
	FoulerName   string `mapstructure:"fouler_name"`
	FoulerTeam   string `mapstructure:"fouler_team"`
	VictimName   string `mapstructure:"victim_name"`
	ShootingFoul bool   `mapstructure:"shooting_foul"`
}

func (f Foul) Fouler() Actor { return Actor{ID: f.FoulerID, Name: f.FoulerName, Team: f.FoulerTeam} }

type FreeThrow struct {
	Header        `mapstructure:"-"`
	PlayerName    string `mapstructure:"player_name"`
	Attempt       int    `mapstructure:"attempt"`
	TotalAttempts int    `mapstructure:"total_attempts"`
	Made          bool   `mapstructure:"made"`
}

type Turnover struct {
	Header     `mapstructure:"-"`
	PlayerName string `mapstructure:"player_name"`
	Team       string `mapstructure:"team"`
}

type QuarterEnd struct {
	Header            `mapstructure:"-"`
	Quarter           int `mapstructure:"quarter"`
	Team1QuarterScore int `mapstructure:"team1_quarter_score"`
	Team2QuarterScore int `mapstructure:"team2_quarter_score"`
	Team1TotalScore   int `mapstructure:"team1_total_score"`
	Team2TotalScore   int `mapstructure:"team2_total_score"`
}

// WinnerTie is the winner value of a drawn game.
const WinnerTie = "tie"

type GameEnd struct {
	Header     `mapstructure:"-"`
	Team1Name  string `mapstructure:"team1_name"`
	Team2Name  string `mapstructure:"team2_name"`
	Team1Score int    `mapstructure:"team1_score"`
	Team2Score int    `mapstructure:"team2_score"`
	Winner     string `mapstructure:"winner"`
}

// Tie reports a drawn game.
func (g GameEnd) Tie() bool { return g.Winner == WinnerTie }

// ErrorReport is an error the simulator reported, not a transport failure.
type ErrorReport struct {
	Header  `mapstructure:"-"`
	Message string `mapstructure:"message"`
}

// Unknown is any event whose type this package does not model.
type Unknown struct {
	Header `mapstructure:"-"`
}

// Data returns the raw payload.
func (u Unknown) Data() map[string]any { return u.data }
