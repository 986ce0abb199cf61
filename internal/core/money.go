// Package core provides money parsing and formatting for Brazilian reais.
//
// Amounts are carried as decimal values end to end. Formatting goes through
// go-money's formatter so the grouping and sign placement match pt-BR.
package core

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// brl renders minor units as "R$ 1.234,56". Negative values come out as "-R$ 1.234,56".
var brl = money.NewFormatter(2, ",", ".", "R$", "$ 1")

// FormatBRL renders d in Brazilian reais, rounded half away from zero to centavos.
//
// Examples:
//
//	FormatBRL(decimal.NewFromInt(1000))        -> "R$ 1.000,00"
//	FormatBRL(decimal.RequireFromString("0.5")) -> "R$ 0,50"
func FormatBRL(d decimal.Decimal) string {
	return brl.Format(Cents(d))
}

// Cents converts d to integer centavos.
func Cents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// FormatPercent renders a 0..1 ratio as a whole percentage, e.g. 0.375 -> "38%".
func FormatPercent(ratio decimal.Decimal) string {
	return ratio.Shift(2).Round(0).String() + "%"
}

// thousandsOnly matches whole numbers written with dot grouping: "1.500",
// "1.234.567". A leading zero group ("0.005") is a decimal, not a group.
var thousandsOnly = regexp.MustCompile(`^[1-9]\d{0,2}(\.\d{3})+$`)

// ParseDecimal reads a non-negative amount typed by a user.
//
// It accepts a dot or comma decimal separator. When both appear, the dot is
// taken as the thousands separator ("1.234,56"). Without a comma, dots that
// group the digits in threes are thousands separators too ("5.000" is five
// thousand); any other single dot is the decimal point. Signs are rejected.
// The result is rounded half away from zero to two places.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if !strings.Contains(s, ",") && thousandsOnly.MatchString(s) {
		s = strings.ReplaceAll(s, ".", "")
	}
	if strings.Contains(s, ",") {
		if strings.Count(s, ",") > 1 {
			return decimal.Zero, ErrInvalidAmount
		}
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	digits := 0
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '.':
		default:
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if digits == 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(s, "."))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(2), nil
}

// ParseAmount is ParseDecimal restricted to strictly positive values.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}
