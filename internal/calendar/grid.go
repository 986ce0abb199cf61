// Package calendar turns raw ledger records into the month grids and day
// cells the UI renders. Everything here is pure and deterministic.
package calendar

import "time"

// MonthNames holds the Portuguese month names, January first.
var MonthNames = [12]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// WeekdayLabels are the column headers, Sunday first.
var WeekdayLabels = [7]string{"D", "S", "T", "Q", "Q", "S", "S"}

// MonthName returns the Portuguese name for m, or "" when m is out of range.
func MonthName(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return MonthNames[m-1]
}

// DaysInMonth returns the number of days in the month, leap years included.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// FirstWeekdayOffset is the weekday of the 1st, 0 for Sunday through 6 for Saturday.
func FirstWeekdayOffset(year int, month time.Month) int {
	return int(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Weekday())
}

// Grid is the shape of one month: Offset blank cells followed by Days day cells.
type Grid struct {
	Year   int
	Month  time.Month
	Days   int
	Offset int
}

func NewGrid(year int, month time.Month) Grid {
	return Grid{
		Year:   year,
		Month:  month,
		Days:   DaysInMonth(year, month),
		Offset: FirstWeekdayOffset(year, month),
	}
}

// Weeks is the number of rows the grid spans.
func (g Grid) Weeks() int {
	return (g.Offset + g.Days + 6) / 7
}
