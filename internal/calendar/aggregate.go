package calendar

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

// Kind separates outflows from inflows.
type Kind int

const (
	Expense Kind = iota
	Income
)

func (k Kind) String() string {
	if k == Income {
		return "income"
	}
	return "expense"
}

const (
	DefaultExpenseLabel = "Despesa"
	DefaultIncomeLabel  = "Receita"
)

// Item is one labelled amount on a day.
type Item struct {
	Description string
	Value       decimal.Decimal
}

type days map[int][]Item

// Ledger is the per-year index of items by month and day, one side per Kind.
// It is built once per render pass and never mutated afterwards.
type Ledger struct {
	year  int
	items [2]map[time.Month]days
}

// EmptyLedger is the ledger of a year with no data.
func EmptyLedger(year int) *Ledger {
	l := &Ledger{year: year}
	for k := range l.items {
		l.items[k] = make(map[time.Month]days)
	}
	return l
}

// Aggregate indexes expenses and additions falling in year. Records with an
// unusable date or a date in another year are skipped silently.
func Aggregate(year int, expenses core.ExpensePayload, additions []core.AdditionRecord) *Ledger {
	l := EmptyLedger(year)
	for _, e := range expenses.Records() {
		l.add(Expense, e.Date, e.Name, DefaultExpenseLabel, e.Amount)
	}
	for _, a := range additions {
		l.add(Income, a.CreatedAt, a.Description, DefaultIncomeLabel, a.Amount)
	}
	return l
}

func (l *Ledger) add(kind Kind, date core.DateTriple, label, fallback string, value decimal.Decimal) {
	if !date.Valid() || date.Year != l.year {
		return
	}
	if strings.TrimSpace(label) == "" {
		label = fallback
	}
	byDay, ok := l.items[kind][date.Month]
	if !ok {
		byDay = make(days)
		l.items[kind][date.Month] = byDay
	}
	byDay[date.Day] = append(byDay[date.Day], Item{Description: label, Value: value})
}

// Year is the year the ledger covers.
func (l *Ledger) Year() int {
	return l.year
}

// Items returns the items of kind on the given day in insertion order.
func (l *Ledger) Items(kind Kind, month time.Month, day int) []Item {
	items := l.items[kind][month][day]
	if len(items) == 0 {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// Has reports whether any item of kind falls on the day.
func (l *Ledger) Has(kind Kind, month time.Month, day int) bool {
	return len(l.items[kind][month][day]) > 0
}

// Total sums the values of kind on the day.
func (l *Ledger) Total(kind Kind, month time.Month, day int) decimal.Decimal {
	total := decimal.Zero
	for _, it := range l.items[kind][month][day] {
		total = total.Add(it.Value)
	}
	return total
}

// DaysWith counts the distinct days of month that carry at least one item of kind.
func (l *Ledger) DaysWith(kind Kind, month time.Month) int {
	return len(l.items[kind][month])
}

// Days returns the distinct days of month carrying kind, ascending.
func (l *Ledger) Days(kind Kind, month time.Month) []int {
	byDay := l.items[kind][month]
	out := make([]int, 0, len(byDay))
	for d := range byDay {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
