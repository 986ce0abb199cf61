package calendar

import (
	"fmt"
	"time"
)

const NoDataInfo = "Sem dados"

// Month is the render model of one month card.
type Month struct {
	Grid
	Name     string
	Weekdays [7]string
	Cells    []Cell
	Info     string
}

// Blanks yields one element per leading empty cell, for template ranges.
func (m Month) Blanks() []struct{} {
	return make([]struct{}, m.Offset)
}

// MonthInfo is the footer line of a month card.
func MonthInfo(expenseDays, incomeDays int) string {
	if expenseDays == 0 && incomeDays == 0 {
		return NoDataInfo
	}
	return fmt.Sprintf("%d gastos, %d recebimentos", expenseDays, incomeDays)
}

// BuildMonth lays out every day of month in the ledger's year.
func BuildMonth(l *Ledger, month time.Month, today time.Time) Month {
	g := NewGrid(l.Year(), month)
	m := Month{
		Grid:     g,
		Name:     MonthName(month),
		Weekdays: WeekdayLabels,
		Cells:    make([]Cell, 0, g.Days),
		Info:     MonthInfo(l.DaysWith(Expense, month), l.DaysWith(Income, month)),
	}
	for day := 1; day <= g.Days; day++ {
		m.Cells = append(m.Cells, BuildCell(l, month, day, today))
	}
	return m
}

// BuildYear lays out all twelve months, January first.
func BuildYear(l *Ledger, today time.Time) []Month {
	months := make([]Month, 0, 12)
	for m := time.January; m <= time.December; m++ {
		months = append(months, BuildMonth(l, m, today))
	}
	return months
}
