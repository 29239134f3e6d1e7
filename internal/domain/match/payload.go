package match

import "github.com/okian/courtside/internal/domain/roster"

// DefaultMaxEnergy is the stamina every player starts a match with.
const DefaultMaxEnergy = 100

// PlayerPayload describes one player to the simulator.
type PlayerPayload struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Attack    int    `json:"attack"`
	Defense   int    `json:"defense"`
	MaxEnergy int    `json:"max_energy"`
}

// TeamPayload is one side of a match.
type TeamPayload struct {
	Name    string          `json:"name"`
	Players []PlayerPayload `json:"players"`
}

// ConnectPayload is sent once per connection to describe both teams.
type ConnectPayload struct {
	Team1 TeamPayload `json:"team1"`
	Team2 TeamPayload `json:"team2"`
}

// DefaultPayload is the standalone training match used when the caller
// supplies no teams.
func DefaultPayload() *ConnectPayload {
	p := func(id int, name string, attack, defense int) PlayerPayload {
		return PlayerPayload{ID: id, Name: name, Attack: attack, Defense: defense, MaxEnergy: DefaultMaxEnergy}
	}
	return &ConnectPayload{
		Team1: TeamPayload{
			Name: "ANADOLU EFES",
			Players: []PlayerPayload{
				p(1, "Shane Larkin", 85, 70),
				p(2, "Vasilije Micic", 82, 68),
				p(3, "Will Clyburn", 78, 75),
				p(4, "Tibor Pleiss", 70, 80),
				p(5, "Rodrigue Beaubois", 75, 65),
			},
		},
		Team2: TeamPayload{
			Name: "FENERBAHCE",
			Players: []PlayerPayload{
				p(6, "Scottie Wilbekin", 83, 72),
				p(7, "Nando De Colo", 80, 70),
				p(8, "Jan Vesely", 76, 78),
				p(9, "Dyshawn Pierre", 72, 82),
				p(10, "Lorenzo Brown", 77, 68),
			},
		},
	}
}

// Side is home or away.
type Side string

const (
	Home Side = "home"
	Away Side = "away"
)

// Entity is a displayed player with the numeric id the simulator knows it by.
type Entity struct {
	Side    Side   `json:"side"`
	Slot    int    `json:"slot"`
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Attack  int    `json:"attack"`
	Defense int    `json:"defense"`
}

// Lineup is what is on court for both sides.
type Lineup struct {
	Home []Entity `json:"home"`
	Away []Entity `json:"away"`
}

// BuildLineup numbers home starters 1..n and away starters n+1.. in slot
// order. Missing sub-ratings fall back to the overall rating.
func BuildLineup(home, away []roster.Slot) Lineup {
	next := 1
	side := func(s Side, slots []roster.Slot) []Entity {
		out := make([]Entity, 0, len(slots))
		for _, sl := range slots {
			out = append(out, Entity{
				Side:    s,
				Slot:    sl.Slot,
				ID:      next,
				Name:    sl.Player.Name,
				Attack:  ratingOr(sl.Player.Offense, sl.Player.Overall),
				Defense: ratingOr(sl.Player.Defense, sl.Player.Overall),
			})
			next++
		}
		return out
	}
	home = (roster.View{Starters: home}).Sorted().Starters
	away = (roster.View{Starters: away}).Sorted().Starters
	l := Lineup{}
	l.Home = side(Home, home)
	l.Away = side(Away, away)
	return l
}

// LineupFromPayload maps team1 to home and team2 to away, slot = position in
// the player list.
func LineupFromPayload(p *ConnectPayload) Lineup {
	if p == nil {
		return Lineup{}
	}
	side := func(s Side, t TeamPayload) []Entity {
		out := make([]Entity, 0, len(t.Players))
		for i, pl := range t.Players {
			out = append(out, Entity{Side: s, Slot: i, ID: pl.ID, Name: pl.Name, Attack: pl.Attack, Defense: pl.Defense})
		}
		return out
	}
	return Lineup{Home: side(Home, p.Team1), Away: side(Away, p.Team2)}
}

// Payload renders the lineup for the simulator.
func (l Lineup) Payload(homeName, awayName string) *ConnectPayload {
	team := func(name string, es []Entity) TeamPayload {
		t := TeamPayload{Name: name, Players: make([]PlayerPayload, 0, len(es))}
		for _, e := range es {
			t.Players = append(t.Players, PlayerPayload{
				ID: e.ID, Name: e.Name, Attack: e.Attack, Defense: e.Defense, MaxEnergy: DefaultMaxEnergy,
			})
		}
		return t
	}
	return &ConnectPayload{Team1: team(homeName, l.Home), Team2: team(awayName, l.Away)}
}

func ratingOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}
