package http

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
	"gastos/internal/validation"
)

const (
	msgRequired    = "Campo obrigatório."
	msgBadAmount   = "Informe um valor válido, por exemplo 1.234,56."
	msgBadDate     = "Informe uma data válida."
	dateInputValue = "2006-01-02"
)

// fieldReader is the part of Form the decoders use.
type fieldReader interface {
	Get(key string) string
	GetAll(key string) []string
}

// decoder accumulates conversion failures keyed by form field name.
type decoder struct {
	errs validation.FieldErrors
}

func newDecoder() *decoder {
	return &decoder{errs: validation.FieldErrors{}}
}

func (d *decoder) amount(field, raw string) decimal.Decimal {
	if raw == "" {
		d.errs.Add(field, msgRequired)
		return decimal.Zero
	}
	v, err := core.ParseDecimal(raw)
	if err != nil {
		d.errs.Add(field, msgBadAmount)
		return decimal.Zero
	}
	return v
}

func (d *decoder) date(field, raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateInputValue, raw)
	if err != nil {
		d.errs.Add(field, msgBadDate)
		return time.Time{}
	}
	return t
}

// day leaves unparseable input at zero so the range rule reports it.
func (d *decoder) day(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func checked(raw string) bool {
	switch strings.ToLower(raw) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// result merges conversion failures with the schema's own findings so the
// user sees every problem at once. It returns nil when nothing failed to convert.
func (d *decoder) result(form any) validation.FieldErrors {
	if len(d.errs) == 0 {
		return nil
	}
	var fe validation.FieldErrors
	if errors.As(validation.Validate(form), &fe) {
		for k, v := range fe {
			d.errs.Add(k, v)
		}
	}
	return d.errs
}

func decodeLogin(p fieldReader) validation.Login {
	return validation.Login{
		Email:    p.Get("email"),
		Password: p.Get("password"),
	}
}

func decodeRegistration(p fieldReader) validation.Registration {
	return validation.Registration{
		FirstName:       p.Get("firstName"),
		LastName:        p.Get("lastName"),
		Email:           p.Get("email"),
		Password:        p.Get("password"),
		ConfirmPassword: p.Get("confirmPassword"),
	}
}

func decodeSalary(p fieldReader) (validation.Salary, validation.FieldErrors) {
	d := newDecoder()
	form := validation.Salary{Amount: d.amount("salaryAmount", p.Get("salaryAmount"))}
	return form, d.result(form)
}

func decodeSalaryDate(p fieldReader) validation.SalaryDate {
	return validation.SalaryDate{Day: newDecoder().day(p.Get("salaryDate"))}
}

func decodeBalance(p fieldReader) (validation.Balance, validation.FieldErrors) {
	d := newDecoder()
	form := validation.Balance{
		Amount:      d.amount("amount", p.Get("amount")),
		Description: p.Get("description"),
	}
	return form, d.result(form)
}

func decodeExpense(p fieldReader) (validation.Expense, validation.FieldErrors) {
	d := newDecoder()
	form := validation.Expense{
		Name:        p.Get("expenseName"),
		Amount:      d.amount("expenseAmount", p.Get("expenseAmount")),
		Date:        d.date("expenseDate", p.Get("expenseDate")),
		Category:    p.Get("expenseCategory"),
		Description: p.Get("description"),
		Recurrent:   checked(p.Get("isRecurrent")),
	}
	return form, d.result(form)
}

// decodeFirstRegistry zips the repeated expense fields by position. Rows with
// neither a name nor an amount are ignored; their date comes prefilled.
func decodeFirstRegistry(p fieldReader) (validation.FirstRegistry, validation.FieldErrors) {
	d := newDecoder()
	form := validation.FirstRegistry{
		CurrentBalance: d.amount("currentBalance", p.Get("currentBalance")),
		MonthlySalary:  d.amount("monthlySalary", p.Get("monthlySalary")),
		SalaryDate:     d.day(p.Get("salaryDate")),
	}

	names := p.GetAll("expenseName")
	amounts := p.GetAll("expenseAmount")
	dates := p.GetAll("expenseDate")
	categories := p.GetAll("expenseCategory")
	recurrent := p.GetAll("isRecurrent")
	at := func(vals []string, i int) string {
		if i < len(vals) {
			return vals[i]
		}
		return ""
	}

	rows := max(len(names), len(amounts), len(dates), len(categories))
	for i := 0; i < rows; i++ {
		name, amount, date, category := at(names, i), at(amounts, i), at(dates, i), at(categories, i)
		if name == "" && amount == "" {
			continue
		}
		n := len(form.Expenses)
		form.Expenses = append(form.Expenses, validation.Expense{
			Name:      name,
			Amount:    d.amount(fmt.Sprintf("expenses[%d].expenseAmount", n), amount),
			Date:      d.date(fmt.Sprintf("expenses[%d].expenseDate", n), date),
			Category:  category,
			Recurrent: checked(at(recurrent, i)),
		})
	}
	return form, d.result(form)
}
