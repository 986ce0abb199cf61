package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Category is the backend's expense category enum.
type Category string

const (
	Housing       Category = "HOUSING"
	Food          Category = "FOOD"
	Transport     Category = "TRANSPORT"
	Health        Category = "HEALTH"
	Entertainment Category = "ENTERTAINMENT"
	Education     Category = "EDUCATION"
	Utilities     Category = "UTILITIES"
	PersonalCare  Category = "PERSONAL_CARE"
	Insurance     Category = "INSURANCE"
	Savings       Category = "SAVINGS"
	Other         Category = "OTHER"
)

// Categories lists every category in display order.
var Categories = []Category{
	Housing, Food, Transport, Health, Entertainment, Education,
	Utilities, PersonalCare, Insurance, Savings, Other,
}

var categoryLabels = map[Category]string{
	Housing:       "Casa",
	Food:          "Alimentação",
	Transport:     "Transporte",
	Health:        "Saúde",
	Entertainment: "Lazer",
	Education:     "Educação",
	Utilities:     "Serviços",
	PersonalCare:  "Cuidados pessoais",
	Insurance:     "Seguro",
	Savings:       "Poupança",
	Other:         "Outros",
}

var titleCaser = cases.Title(language.BrazilianPortuguese)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the Portuguese display name. Unknown values are title-cased.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return titleCaser.String(strings.ReplaceAll(strings.ToLower(string(c)), "_", " "))
}

// DateTriple is a calendar date as the backend serializes it: a JSON array
// [year, month, day, ...] with a 1-based month. Decoding never fails; an
// unusable value decodes to a date whose Valid reports false.
type DateTriple struct {
	Year  int
	Month time.Month
	Day   int
	ok    bool
}

// DateOf builds a valid triple from t.
func DateOf(t time.Time) DateTriple {
	return DateTriple{Year: t.Year(), Month: t.Month(), Day: t.Day(), ok: true}
}

// NewDateTriple builds a triple from raw parts. It is valid only when month is 1..12 and day 1..31.
func NewDateTriple(year, month, day int) DateTriple {
	d := DateTriple{Year: year, Month: time.Month(month), Day: day}
	d.ok = month >= 1 && month <= 12 && day >= 1 && day <= 31
	return d
}

// Valid reports whether the triple carries a usable year, month and day.
func (d DateTriple) Valid() bool {
	return d.ok
}

func (d *DateTriple) UnmarshalJSON(b []byte) error {
	*d = DateTriple{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	switch b[0] {
	case '[':
		var parts []json.Number
		if err := json.Unmarshal(b, &parts); err != nil || len(parts) < 3 {
			return nil
		}
		var ymd [3]int
		for i := range ymd {
			n, err := parts[i].Int64()
			if err != nil {
				return nil
			}
			ymd[i] = int(n)
		}
		*d = NewDateTriple(ymd[0], ymd[1], ymd[2])
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil || len(s) < len(time.DateOnly) {
			return nil
		}
		t, err := time.Parse(time.DateOnly, s[:len(time.DateOnly)])
		if err != nil {
			return nil
		}
		*d = DateOf(t)
	}
	return nil
}

// MarshalJSON writes the array form, or null for an invalid triple.
func (d DateTriple) MarshalJSON() ([]byte, error) {
	if !d.ok {
		return []byte("null"), nil
	}
	return json.Marshal([3]int{d.Year, int(d.Month), d.Day})
}

type (
	// ExpenseRecord is one expense as listed by the backend.
	ExpenseRecord struct {
		Name        string          `json:"expenseName"`
		Amount      decimal.Decimal `json:"expenseAmount"`
		Date        DateTriple      `json:"expenseDate"`
		Category    Category        `json:"expenseCategory,omitempty"`
		Description string          `json:"description,omitempty"`
		Recurrent   bool            `json:"isRecurrent"`
	}

	// ExpensePayload groups expense records under month keys. Keys are
	// opaque; only each record's own date places it on the calendar.
	ExpensePayload struct {
		MonthlyExpenses map[string][]ExpenseRecord `json:"monthlyExpenses"`
	}

	// AdditionRecord is one balance addition (income) as listed by the backend.
	AdditionRecord struct {
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
		CreatedAt   DateTriple      `json:"createdAt"`
	}

	// ExpenseInput is a new expense submitted by the user.
	ExpenseInput struct {
		Name        string
		Amount      decimal.Decimal
		Date        time.Time
		Category    Category
		Description string
		Recurrent   bool
	}

	// AdditionInput adds money to the balance.
	AdditionInput struct {
		Amount      decimal.Decimal
		Description string
	}

	// FirstRegistryInput is the onboarding submission.
	FirstRegistryInput struct {
		CurrentBalance decimal.Decimal
		MonthlySalary  decimal.Decimal
		SalaryDate     int
		Expenses       []ExpenseInput
	}
)

// Records flattens the payload in a stable order: month keys sorted, records in payload order.
func (p ExpensePayload) Records() []ExpenseRecord {
	keys := make([]string, 0, len(p.MonthlyExpenses))
	for k := range p.MonthlyExpenses {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []ExpenseRecord
	for _, k := range keys {
		out = append(out, p.MonthlyExpenses[k]...)
	}
	return out
}

var (
	ErrInvalidDay      = errors.New("invalid day")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyName       = errors.New("empty name")
	ErrInvalidCategory = errors.New("invalid category")
)

// Validate checks the rules the backend enforces on a new expense.
func (e ExpenseInput) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if e.Date.IsZero() {
		return ErrInvalidDay
	}
	if !e.Category.Valid() {
		return ErrInvalidCategory
	}
	return nil
}
