// Package validation is the single declarative schema for every form the UI
// accepts. Failures map to Portuguese messages keyed by form field name.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

// Password bounds shared by login and registration.
const (
	PasswordMin = 12
	PasswordMax = 72
)

type (
	Login struct {
		Email    string `form:"email" validate:"required,email,max=254"`
		Password string `form:"password" validate:"required,min=12,max=72"`
	}

	Registration struct {
		FirstName       string `form:"firstName" validate:"required,max=30"`
		LastName        string `form:"lastName" validate:"required,max=50"`
		Email           string `form:"email" validate:"required,email,max=254"`
		Password        string `form:"password" validate:"required,min=12,max=72"`
		ConfirmPassword string `form:"confirmPassword" validate:"eqfield=Password"`
	}

	Salary struct {
		Amount decimal.Decimal `form:"salaryAmount" validate:"gt=0"`
	}

	SalaryDate struct {
		Day int `form:"salaryDate" validate:"min=1,max=31"`
	}

	Balance struct {
		Amount      decimal.Decimal `form:"amount" validate:"gt=0"`
		Description string          `form:"description" validate:"max=255"`
	}

	Expense struct {
		Name        string          `form:"expenseName" validate:"required,max=100"`
		Amount      decimal.Decimal `form:"expenseAmount" validate:"gt=0"`
		Date        time.Time       `form:"expenseDate" validate:"required"`
		Category    string          `form:"expenseCategory" validate:"required,category"`
		Description string          `form:"description" validate:"max=255"`
		Recurrent   bool            `form:"isRecurrent"`
	}

	FirstRegistry struct {
		CurrentBalance decimal.Decimal `form:"currentBalance" validate:"gte=0"`
		MonthlySalary  decimal.Decimal `form:"monthlySalary" validate:"gt=0"`
		SalaryDate     int             `form:"salaryDate" validate:"min=1,max=31"`
		Expenses       []Expense       `form:"expenses" validate:"dive"`
	}
)

// Input converts the form into the domain value.
func (e Expense) Input() core.ExpenseInput {
	return core.ExpenseInput{
		Name:        strings.TrimSpace(e.Name),
		Amount:      e.Amount,
		Date:        e.Date,
		Category:    core.Category(e.Category),
		Description: strings.TrimSpace(e.Description),
		Recurrent:   e.Recurrent,
	}
}

// Input converts the form into the domain value.
func (f FirstRegistry) Input() core.FirstRegistryInput {
	in := core.FirstRegistryInput{
		CurrentBalance: f.CurrentBalance,
		MonthlySalary:  f.MonthlySalary,
		SalaryDate:     f.SalaryDate,
		Expenses:       make([]core.ExpenseInput, 0, len(f.Expenses)),
	}
	for _, e := range f.Expenses {
		in.Expenses = append(in.Expenses, e.Input())
	}
	return in
}

// FieldErrors maps form field names to a user-facing message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records msg for field unless the field already has a message.
func (fe FieldErrors) Add(field, msg string) {
	if _, ok := fe[field]; !ok {
		fe[field] = msg
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return core.Category(fl.Field().String()).Valid()
	})
	return v
}

// Field-specific messages take precedence over the per-tag ones.
var fieldMessages = map[string]string{
	"salaryDate":      "Por favor, informe um dia válido (1-31).",
	"confirmPassword": "As senhas não coincidem.",
	"expenseCategory": "Selecione uma categoria.",
}

// Validate checks form against its struct tags. It returns nil or FieldErrors.
func Validate(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := FieldErrors{}
	for _, fe := range verrs {
		key := fe.Namespace()
		if i := strings.Index(key, "."); i >= 0 {
			key = key[i+1:]
		}
		out.Add(key, message(fe))
	}
	return out
}

func message(fe validator.FieldError) string {
	if msg, ok := fieldMessages[fe.Field()]; ok {
		return msg
	}
	isText := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return "Campo obrigatório."
	case "email":
		return "Informe um e-mail válido."
	case "min":
		if isText {
			return fmt.Sprintf("Deve ter pelo menos %s caracteres.", fe.Param())
		}
		return fmt.Sprintf("O valor mínimo é %s.", fe.Param())
	case "max":
		if isText {
			return fmt.Sprintf("Deve ter no máximo %s caracteres.", fe.Param())
		}
		return fmt.Sprintf("O valor máximo é %s.", fe.Param())
	case "gt":
		return "Informe um valor maior que zero."
	case "gte":
		return "O valor não pode ser negativo."
	default:
		return "Valor inválido."
	}
}
