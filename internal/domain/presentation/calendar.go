package presentation

import "time"

// Fixture is a scheduled match.
type Fixture struct {
	Date     string `json:"date"`
	Opponent string `json:"opponent"`
	Logo     string `json:"logo"`
	Time     string `json:"time"`
}

// Cell is one calendar square. Day is zero for leading blanks.
type Cell struct {
	Day     int      `json:"day"`
	Today   bool     `json:"today"`
	Fixture *Fixture `json:"fixture,omitempty"`
}

// Calendar is a Monday-first month grid.
type Calendar struct {
	Title    string    `json:"title"`
	WeekDays []string  `json:"weekDays"`
	Cells    []Cell    `json:"cells"`
	Fixtures []Fixture `json:"fixtures"`
}

const fixtureDay = 18

// Month builds the grid for the month containing today, with the single
// demo fixture on the 18th.
func Month(today time.Time) Calendar {
	first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	days := first.AddDate(0, 1, -1).Day()
	lead := (int(first.Weekday()) + 6) % 7

	fixture := Fixture{
		Date:     time.Date(today.Year(), today.Month(), fixtureDay, 0, 0, 0, 0, today.Location()).Format(time.DateOnly),
		Opponent: "Boston Celtics",
		Logo:     "/teams/logo.png",
		Time:     "19:00",
	}

	cal := Calendar{
		Title:    first.Format("January 2006"),
		WeekDays: []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"},
		Cells:    make([]Cell, lead, lead+days),
		Fixtures: []Fixture{fixture},
	}
	for d := 1; d <= days; d++ {
		c := Cell{Day: d, Today: d == today.Day()}
		if d == fixtureDay {
			f := fixture
			c.Fixture = &f
		}
		cal.Cells = append(cal.Cells, c)
	}
	return cal
}
