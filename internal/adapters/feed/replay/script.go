package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/okian/courtside/internal/domain/match"
)

// Step is one scripted frame. String values in Data may reference the
// connected teams:
//
//	$team1, $team2            team name
//	$team1.<i>.name           name of the i-th player
//	$team1.<i>.id             numeric id of the i-th player
type Step struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// LoadScript reads a JSON array of steps from path.
func LoadScript(path string) ([]Step, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScript, err)
	}
	var steps []Step
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrScript, path, err)
	}
	if len(steps) == 0 {
		return nil, ErrEmptyScript
	}
	for i, st := range steps {
		if strings.TrimSpace(st.Type) == "" {
			return nil, fmt.Errorf("%w: step %d has no type", ErrScript, i)
		}
	}
	return steps, nil
}

// Resolve returns the step's data with team references replaced from p.
// Unresolvable references are left as written.
func (st Step) Resolve(p *match.ConnectPayload) map[string]any {
	out := make(map[string]any, len(st.Data))
	for k, v := range st.Data {
		if s, ok := v.(string); ok && strings.HasPrefix(s, "$") {
			if r, ok := lookup(p, s[1:]); ok {
				out[k] = r
				continue
			}
		}
		out[k] = v
	}
	return out
}

func lookup(p *match.ConnectPayload, ref string) (any, bool) {
	parts := strings.Split(ref, ".")
	var team match.TeamPayload
	switch parts[0] {
	case "team1":
		team = p.Team1
	case "team2":
		team = p.Team2
	default:
		return nil, false
	}
	if len(parts) == 1 {
		return team.Name, true
	}
	if len(parts) != 3 {
		return nil, false
	}
	i, err := strconv.Atoi(parts[1])
	if err != nil || i < 0 || i >= len(team.Players) {
		return nil, false
	}
	switch parts[2] {
	case "name":
		return team.Players[i].Name, true
	case "id":
		return team.Players[i].ID, true
	default:
		return nil, false
	}
}

func step(t match.Type, data map[string]any) Step { return Step{Type: string(t), Data: data} }

// DefaultScript is a short match covering every event type.
func DefaultScript() []Step {
	return []Step{
		step(match.TypeGameStart, map[string]any{"team1_name": "$team1", "team2_name": "$team2"}),
		step(match.TypeQuarterStart, map[string]any{
			"quarter": 1, "team1_score": 0, "team2_score": 0, "time_remaining_formatted": "12:00",
			"team1_name": "$team1", "team2_name": "$team2",
		}),
		step(match.TypeScore, map[string]any{
			"scorer_id": "$team1.0.id", "scorer_name": "$team1.0.name", "scorer_team": "$team1",
			"points": 3, "assist": true, "assister_id": "$team1.1.id", "assister_name": "$team1.1.name",
			"team1_score": 3, "team2_score": 0, "quarter": 1, "time_remaining_formatted": "11:41",
		}),
		step(match.TypeMiss, map[string]any{
			"shooter_id": "$team2.0.id", "shooter_name": "$team2.0.name", "shooter_team": "$team2",
		}),
		step(match.TypeBlock, map[string]any{
			"blocker_id": "$team1.4.id", "blocker_name": "$team1.4.name", "blocker_team": "$team1",
			"shooter_name": "$team2.2.name",
		}),
		step(match.TypeFoul, map[string]any{
			"fouler_id": "$team1.3.id", "fouler_name": "$team1.3.name", "fouler_team": "$team1",
			"victim_name": "$team2.1.name", "shooting_foul": true,
		}),
		step(match.TypeFreeThrow, map[string]any{
			"player_name": "$team2.1.name", "attempt": 1, "total_attempts": 2, "made": true,
		}),
		step(match.TypeFreeThrow, map[string]any{
			"player_name": "$team2.1.name", "attempt": 2, "total_attempts": 2, "made": false,
		}),
		step(match.TypeGameState, map[string]any{
			"team1_score": 3, "team2_score": 1, "quarter": 1, "time_remaining_formatted": "10:58",
			"possession": "$team1",
		}),
		step(match.TypeTurnover, map[string]any{"player_name": "$team1.2.name", "team": "$team1"}),
		step(match.TypeScore, map[string]any{
			"scorer_id": "$team2.4.id", "scorer_name": "$team2.4.name", "scorer_team": "$team2",
			"points": 2, "team1_score": 3, "team2_score": 3, "quarter": 1, "time_remaining_formatted": "10:20",
		}),
		step(match.TypeScore, map[string]any{
			"scorer_id": "$team1.2.id", "scorer_name": "$team1.2.name", "scorer_team": "$team1",
			"points": 2, "team1_score": 5, "team2_score": 3, "quarter": 1, "time_remaining_formatted": "00:02",
		}),
		step(match.TypeQuarterEnd, map[string]any{
			"quarter": 1, "team1_quarter_score": 5, "team2_quarter_score": 3,
			"team1_total_score": 5, "team2_total_score": 3,
		}),
		step(match.TypeGameEnd, map[string]any{
			"team1_name": "$team1", "team2_name": "$team2",
			"team1_score": 5, "team2_score": 3, "winner": "$team1",
		}),
	}
}
