package view

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/calendar"
)

// ErrorPlaceholder replaces a figure whose fetch failed.
const ErrorPlaceholder = "Erro ao carregar"

// Figure is one display-only account value.
type Figure struct {
	Text string
	OK   bool
}

func failedFigure() Figure {
	return Figure{Text: ErrorPlaceholder}
}

// Figures are the account values shown above the calendar.
type Figures struct {
	Balance Figure
	Salary  Figure
	Spent   Figure
	// SpentLevel grades the salary share spent: healthy, moderate, tight or critical.
	SpentLevel string
	// NeedsOnboarding is set when the salary loaded as zero, i.e. the first registry is pending.
	NeedsOnboarding bool
}

var spentLevels = []struct {
	upTo  decimal.Decimal
	level string
}{
	{decimal.RequireFromString("0.33"), "healthy"},
	{decimal.RequireFromString("0.66"), "moderate"},
	{decimal.RequireFromString("0.9"), "tight"},
}

// SpentLevel grades a 0..1 spent ratio.
func SpentLevel(ratio decimal.Decimal) string {
	for _, l := range spentLevels {
		if ratio.LessThanOrEqual(l.upTo) {
			return l.level
		}
	}
	return "critical"
}

// Snapshot is the immutable result of one committed render pass.
type Snapshot struct {
	Period     Period
	Generation uint64
	Today      time.Time
	Months     []calendar.Month
	Figures    Figures
	// Degraded is set when the expense or income fetch failed and the calendar shows no data.
	Degraded bool
	// Unauthorized is set when the backend refused the session token.
	Unauthorized bool
}

// PrevYear and NextYear are the navigation targets.
func (s *Snapshot) PrevYear() int { return s.Period.Year - 1 }
func (s *Snapshot) NextYear() int { return s.Period.Year + 1 }

func itoa(i int) string { return strconv.Itoa(i) }
