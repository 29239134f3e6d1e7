// Package presentation derives the read models the match and roster screens
// render: scoreboard panel, salary cap, fixture calendar, chat and the dummy
// opponent.
package presentation

import (
	"strconv"
	"strings"

	"github.com/okian/courtside/internal/domain/interpret"
	"github.com/okian/courtside/internal/domain/match"
	"github.com/okian/courtside/internal/domain/roster"
)

// DefaultAwayTeam is shown until a real opponent exists.
const DefaultAwayTeam = "Warriors"

// Panel is the scoreboard as displayed.
type Panel struct {
	HomeTeam  string           `json:"homeTeam"`
	AwayTeam  string           `json:"awayTeam"`
	HomeScore int              `json:"homeScore"`
	AwayScore int              `json:"awayScore"`
	Quarter   int              `json:"quarter"`
	Minutes   int              `json:"minutes"`
	Seconds   int              `json:"seconds"`
	HomeStats roster.TeamStats `json:"homeStats"`
	AwayStats roster.TeamStats `json:"awayStats"`
}

// NewPanel starts the scoreboard at tip-off.
func NewPanel(homeTeam, awayTeam string, home, away []roster.Slot) Panel {
	if awayTeam == "" {
		awayTeam = DefaultAwayTeam
	}
	m, s := ParseClock(match.DefaultTimeRemaining)
	return Panel{
		HomeTeam:  homeTeam,
		AwayTeam:  awayTeam,
		Quarter:   match.DefaultQuarter,
		Minutes:   m,
		Seconds:   s,
		HomeStats: roster.Stats(home),
		AwayStats: roster.Stats(away),
	}
}

// Apply returns p with the live score and clock from sb.
func (p Panel) Apply(sb interpret.Scoreboard) Panel {
	p.HomeScore = sb.HomeScore
	p.AwayScore = sb.AwayScore
	p.Quarter = sb.Quarter
	p.Minutes, p.Seconds = ParseClock(sb.TimeRemaining)
	return p
}

// Clock formats the remaining time as MM:SS.
func (p Panel) Clock() string {
	return pad2(p.Minutes) + ":" + pad2(p.Seconds)
}

// ParseClock splits "MM:SS". Parts that are not numbers read as zero.
func ParseClock(s string) (minutes, seconds int) {
	mm, ss, _ := strings.Cut(strings.TrimSpace(s), ":")
	minutes, _ = strconv.Atoi(strings.TrimSpace(mm))
	seconds, _ = strconv.Atoi(strings.TrimSpace(ss))
	return minutes, seconds
}

func pad2(n int) string {
	if n >= 0 && n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
