package calendar

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

// MaxItemizedLines is the most items a popup section lists one by one.
const MaxItemizedLines = 4

// Variant is the background state of a day cell.
type Variant string

const (
	VariantNone    Variant = ""
	VariantExpense Variant = "expense"
	VariantIncome  Variant = "income"
	VariantSplit   Variant = "split"
)

// Class is the CSS class for the variant.
func (v Variant) Class() string {
	if v == VariantNone {
		return ""
	}
	return string(v) + "-bg"
}

// LineKind tells the template how to draw a popup line.
type LineKind int

const (
	LineItem LineKind = iota
	LineSummary
	LineDivider
	LineTotal
)

// Line is one row of a popup section.
type Line struct {
	Kind  LineKind
	Label string
	Value string
}

func (l Line) IsDivider() bool { return l.Kind == LineDivider }
func (l Line) IsEmphasis() bool {
	return l.Kind == LineSummary || l.Kind == LineTotal
}

// Section lists the items of one kind on a day.
type Section struct {
	Kind    Kind
	Heading string
	Count   int
	Total   decimal.Decimal
	Lines   []Line
}

// Summarized reports whether the items were collapsed into one line.
func (s Section) Summarized() bool {
	return s.Count > MaxItemizedLines
}

// Popup is the detail shown for a day with activity. Income comes first.
type Popup struct {
	Title    string
	Sections []Section
}

// Divided reports whether a divider separates the income and expense sections.
func (p *Popup) Divided() bool {
	return len(p.Sections) > 1
}

// Cell is one day in a month grid.
type Cell struct {
	Day     int
	Variant Variant
	IsToday bool
	Popup   *Popup
}

// VariantFor applies the background precedence: split, then expense, then income.
func VariantFor(hasExpense, hasIncome bool) Variant {
	switch {
	case hasExpense && hasIncome:
		return VariantSplit
	case hasExpense:
		return VariantExpense
	case hasIncome:
		return VariantIncome
	default:
		return VariantNone
	}
}

// BuildCell composes the cell for day of month in the ledger's year. Today is
// compared by calendar date in its own location.
func BuildCell(l *Ledger, month time.Month, day int, today time.Time) Cell {
	hasExpense := l.Has(Expense, month, day)
	hasIncome := l.Has(Income, month, day)

	ty, tm, td := today.Date()
	c := Cell{
		Day:     day,
		Variant: VariantFor(hasExpense, hasIncome),
		IsToday: ty == l.Year() && tm == month && td == day,
	}
	if !hasExpense && !hasIncome {
		return c
	}

	p := &Popup{Title: fmt.Sprintf("%d de %s", day, MonthName(month))}
	if hasIncome {
		p.Sections = append(p.Sections, buildSection(Income, l.Items(Income, month, day)))
	}
	if hasExpense {
		p.Sections = append(p.Sections, buildSection(Expense, l.Items(Expense, month, day)))
	}
	c.Popup = p
	return c
}

type sectionText struct {
	heading, plural, total string
}

var sectionTexts = map[Kind]sectionText{
	Income:  {"Recebimentos:", "recebimentos", "Total receitas:"},
	Expense: {"Gastos:", "gastos", "Total gastos:"},
}

func buildSection(kind Kind, items []Item) Section {
	text := sectionTexts[kind]
	s := Section{Kind: kind, Heading: text.heading, Count: len(items), Total: decimal.Zero}
	for _, it := range items {
		s.Total = s.Total.Add(it.Value)
	}

	if s.Summarized() {
		s.Lines = []Line{{
			Kind:  LineSummary,
			Label: fmt.Sprintf("%d %s", s.Count, text.plural),
			Value: core.FormatBRL(s.Total),
		}}
		return s
	}

	for i, it := range items {
		if i > 0 {
			s.Lines = append(s.Lines, Line{Kind: LineDivider})
		}
		s.Lines = append(s.Lines, Line{Kind: LineItem, Label: it.Description, Value: core.FormatBRL(it.Value)})
	}
	if len(items) > 1 {
		s.Lines = append(s.Lines,
			Line{Kind: LineDivider},
			Line{Kind: LineTotal, Label: text.total, Value: core.FormatBRL(s.Total)},
		)
	}
	return s
}
