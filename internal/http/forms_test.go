package http

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func formReader(t *testing.T, v url.Values) *Form {
	t.Helper()
	f, err := decodeForm("application/x-www-form-urlencoded", []byte(v.Encode()))
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestDecodeExpense(t *testing.T) {
	form, ferrs := decodeExpense(formReader(t, url.Values{
		"expenseName":     {"Mercado"},
		"expenseAmount":   {"1.234,56"},
		"expenseDate":     {"2024-01-12"},
		"expenseCategory": {"FOOD"},
		"isRecurrent":     {"on"},
	}))
	if ferrs != nil {
		t.Fatalf("unexpected errors: %v", ferrs)
	}
	if !form.Amount.Equal(decimal.RequireFromString("1234.56")) {
		t.Errorf("amount = %s", form.Amount)
	}
	if !form.Date.Equal(time.Date(2024, time.January, 12, 0, 0, 0, 0, time.UTC)) || !form.Recurrent {
		t.Errorf("form = %+v", form)
	}
}

func TestDecodeExpenseCollectsEveryProblem(t *testing.T) {
	_, ferrs := decodeExpense(formReader(t, url.Values{
		"expenseName":   {""},
		"expenseAmount": {"doze"},
		"expenseDate":   {"12/01/2024"},
	}))
	for field, want := range map[string]string{
		"expenseAmount":   msgBadAmount,
		"expenseDate":     msgBadDate,
		"expenseName":     "Campo obrigatório.",
		"expenseCategory": "Selecione uma categoria.",
	} {
		if ferrs[field] != want {
			t.Errorf("%s: got %q, want %q", field, ferrs[field], want)
		}
	}
}

func TestDecodeAmounts(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr string
	}{
		{"2500", "2500", ""},
		{"12,5", "12.5", ""},
		{"0.005", "0.01", ""},
		{"", "0", msgRequired},
		{"-10", "0", msgBadAmount},
		{"1,2,3", "0", msgBadAmount},
	}
	for _, tt := range tests {
		form, ferrs := decodeBalance(formReader(t, url.Values{"amount": {tt.raw}}))
		if got := ferrs["amount"]; got != tt.wantErr {
			t.Errorf("%q: error %q, want %q", tt.raw, got, tt.wantErr)
		}
		if !form.Amount.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("%q: amount %s, want %s", tt.raw, form.Amount, tt.want)
		}
	}
}

func TestDecodeSalaryReadsDotGrouping(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"5.000", "5000"},
		{"1.500", "1500"},
		{"1.234.567", "1234567"},
		{"1.500,75", "1500.75"},
		{"3500.5", "3500.5"},
	}
	for _, tt := range tests {
		form, ferrs := decodeSalary(formReader(t, url.Values{"salaryAmount": {tt.raw}}))
		if ferrs != nil {
			t.Errorf("%q: unexpected errors %v", tt.raw, ferrs)
			continue
		}
		if !form.Amount.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("%q: amount %s, want %s", tt.raw, form.Amount, tt.want)
		}
	}
}

func TestDecodeSalaryDateLeavesRangeToSchema(t *testing.T) {
	if got := decodeSalaryDate(formReader(t, url.Values{"salaryDate": {"32"}})).Day; got != 32 {
		t.Errorf("Day = %d", got)
	}
	if got := decodeSalaryDate(formReader(t, url.Values{"salaryDate": {"dez"}})).Day; got != 0 {
		t.Errorf("Day = %d", got)
	}
}

func TestDecodeFirstRegistry(t *testing.T) {
	form, ferrs := decodeFirstRegistry(formReader(t, url.Values{
		"currentBalance":  {"0"},
		"monthlySalary":   {"4.500,00"},
		"salaryDate":      {"5"},
		"expenseName":     {"Aluguel", "", "Luz"},
		"expenseAmount":   {"1500", "", "120,40"},
		"expenseDate":     {"2024-01-05", "2024-01-20", "2024-01-15"},
		"expenseCategory": {"HOUSING", "", "UTILITIES"},
		"isRecurrent":     {"true", "false", "false"},
	}))
	if ferrs != nil {
		t.Fatalf("unexpected errors: %v", ferrs)
	}
	if len(form.Expenses) != 2 {
		t.Fatalf("blank row should be skipped, got %d expenses", len(form.Expenses))
	}
	if !form.Expenses[0].Recurrent || form.Expenses[1].Recurrent || form.Expenses[1].Name != "Luz" {
		t.Errorf("expenses = %+v", form.Expenses)
	}
	if !form.MonthlySalary.Equal(decimal.NewFromInt(4500)) || form.SalaryDate != 5 {
		t.Errorf("form = %+v", form)
	}
}

func TestDecodeFirstRegistryRowErrorsAreIndexed(t *testing.T) {
	_, ferrs := decodeFirstRegistry(formReader(t, url.Values{
		"currentBalance":  {"10"},
		"monthlySalary":   {"3000"},
		"salaryDate":      {"40"},
		"expenseName":     {"", "Luz"},
		"expenseAmount":   {"", "x"},
		"expenseCategory": {"", "UTILITIES"},
	}))
	if ferrs["expenses[0].expenseAmount"] != msgBadAmount {
		t.Errorf("second row becomes the first kept row: %v", ferrs)
	}
	if !strings.Contains(ferrs["salaryDate"], "1-31") {
		t.Errorf("schema errors should be merged in: %v", ferrs)
	}
}
