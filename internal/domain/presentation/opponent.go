package presentation

import (
	"math/rand/v2"
	"strconv"

	"github.com/okian/courtside/internal/domain/roster"
)

var (
	firstNames = []string{"Marcus", "James", "Kevin", "Anthony", "Chris", "Darius", "Isaiah", "Malik", "Devin", "Brandon"} //nolint:gochecknoglobals // name pool
	lastNames  = []string{"Johnson", "Williams", "Brown", "Davis", "Miller", "Wilson", "Moore", "Taylor", "Anderson", "Thomas"} //nolint:gochecknoglobals // name pool
)

const opponentImage = "/players/b1.png"

// DummyOpponent builds five random starters, one per position. The same seed
// always yields the same team.
func DummyOpponent(seed uint64) []roster.Slot {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // cosmetic data
	out := make([]roster.Slot, 0, len(roster.Positions))
	for slot, pos := range roster.Positions {
		name := firstNames[r.IntN(len(firstNames))] + " " + lastNames[r.IntN(len(lastNames))]
		out = append(out, roster.Slot{
			Location: roster.Starter,
			Slot:     slot,
			Player: roster.Player{
				ID:       "opponent-" + strconv.Itoa(slot),
				Name:     name,
				Pos:      pos,
				Overall:  65 + r.IntN(20),
				ImageURL: opponentImage,
				Offense:  roster.Rating(60 + r.IntN(30)),
				Defense:  roster.Rating(60 + r.IntN(30)),
			},
		})
	}
	return out
}
