package roster

import (
	"math"
	"math/big"
)

// TeamStats are rounded means across a set of slots.
type TeamStats struct {
	Overall int `json:"overall"`
	Offense int `json:"offense"`
	Defense int `json:"defense"`
}

// Stats averages overall, offense and defense. Missing sub-ratings count as
// zero; an empty set yields zero stats.
func Stats(slots []Slot) TeamStats {
	if len(slots) == 0 {
		return TeamStats{}
	}
	var overall, offense, defense int
	for _, s := range slots {
		overall += s.Player.Overall
		if s.Player.Offense != nil {
			offense += *s.Player.Offense
		}
		if s.Player.Defense != nil {
			defense += *s.Player.Defense
		}
	}
	n := float64(len(slots))
	return TeamStats{
		Overall: int(math.Round(float64(overall) / n)),
		Offense: int(math.Round(float64(offense) / n)),
		Defense: int(math.Round(float64(defense) / n)),
	}
}

// TotalSalary sums the decimal salary strings of every slot. Unparseable or
// missing salaries count as zero.
func TotalSalary(slots []Slot) *big.Int {
	total := new(big.Int)
	for _, s := range slots {
		if s.Player.Salary == "" {
			continue
		}
		if n, ok := new(big.Int).SetString(s.Player.Salary, 10); ok {
			total.Add(total, n)
		}
	}
	return total
}
