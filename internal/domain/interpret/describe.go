package interpret

import (
	"encoding/json"
	"fmt"

	"github.com/okian/courtside/internal/domain/match"
)

// Describe renders the play-by-play line for ev.
func Describe(ev match.Event) string {
	switch e := ev.(type) {
	case match.GameStart:
		return fmt.Sprintf("🏀 GAME STARTED: %s vs %s", e.Team1Name, e.Team2Name)
	case match.QuarterStart:
		return fmt.Sprintf("🏀 QUARTER %d STARTED - Score: %s %d - %d %s",
			e.Quarter, e.Team1Name, e.Team1Score, e.Team2Score, e.Team2Name)
	case match.GameState:
		return fmt.Sprintf("⏱️ %s | Score: %d-%d | Possession: %s",
			e.TimeRemaining, e.Team1Score, e.Team2Score, e.Possession)
	case match.Score:
		assist := ""
		if e.Assist {
			assist = fmt.Sprintf(" (Assist: %s)", e.AssisterName)
		}
		return fmt.Sprintf("✅ SCORE! %s (%s) - %d pts%s", e.ScorerName, e.ScorerTeam, e.Points, assist)
	case match.Miss:
		return fmt.Sprintf("❌ Miss: %s (%s)", e.ShooterName, e.ShooterTeam)
	case match.Block:
		return fmt.Sprintf("🚫 BLOCK! %s (%s) → %s", e.BlockerName, e.BlockerTeam, e.ShooterName)
	case match.Foul:
		shooting := ""
		if e.ShootingFoul {
			shooting = " [Shooting foul]"
		}
		return fmt.Sprintf("🚨 FOUL! %s (%s) → %s%s", e.FoulerName, e.FoulerTeam, e.VictimName, shooting)
	case match.FreeThrow:
		result := "❌ MISSED"
		if e.Made {
			result = "✅ MADE"
		}
		return fmt.Sprintf("🎯 Free throw %d/%d: %s %s", e.Attempt, e.TotalAttempts, e.PlayerName, result)
	case match.Turnover:
		return fmt.Sprintf("🔄 Turnover: %s (%s)", e.PlayerName, e.Team)
	case match.QuarterEnd:
		return fmt.Sprintf("🏁 QUARTER %d ENDED - Quarter: %d-%d | Total: %d-%d",
			e.Quarter, e.Team1QuarterScore, e.Team2QuarterScore, e.Team1TotalScore, e.Team2TotalScore)
	case match.GameEnd:
		outcome := "🤝 TIE!"
		if !e.Tie() {
			outcome = "🏆 WINNER: " + e.Winner
		}
		return fmt.Sprintf("🎉 GAME OVER! %s %d - %d %s | %s",
			e.Team1Name, e.Team1Score, e.Team2Score, e.Team2Name, outcome)
	case match.ErrorReport:
		return "❌ ERROR: " + e.Message
	default:
		raw, err := json.Marshal(ev.Envelope().Data)
		if err != nil {
			raw = []byte("{}")
		}
		return fmt.Sprintf("%s: %s", ev.Type(), raw)
	}
}
