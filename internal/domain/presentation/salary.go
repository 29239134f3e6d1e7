package presentation

import (
	"math/big"

	"github.com/dustin/go-humanize"
	"github.com/okian/courtside/internal/domain/roster"
)

// MaxSalary is the salary cap.
const MaxSalary int64 = 100_000_000

// Salary is the cap panel.
type Salary struct {
	Total        string `json:"total"`
	Max          string `json:"max"`
	TotalDisplay string `json:"totalDisplay"`
	MaxDisplay   string `json:"maxDisplay"`
	OverCap      bool   `json:"overCap"`
}

// SalaryOf sums salaries across starters and bench.
func SalaryOf(v roster.View) Salary {
	total := roster.TotalSalary(v.Slots())
	limit := big.NewInt(MaxSalary)
	return Salary{
		Total:        total.String(),
		Max:          limit.String(),
		TotalDisplay: humanize.BigComma(total),
		MaxDisplay:   humanize.Comma(MaxSalary),
		OverCap:      total.Cmp(limit) > 0,
	}
}
