// Package ledger defines the ports the UI uses to reach the budgeting backend.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

// Ports for outbound adapters. Every call reads the caller's token from ctx.
type (
	ExpenseReader interface {
		// ListExpenses returns every expense of the user grouped by month key.
		ListExpenses(ctx context.Context) (core.ExpensePayload, error)
	}

	AdditionReader interface {
		// YearlyAdditions returns the balance additions created in year.
		YearlyAdditions(ctx context.Context, year int) ([]core.AdditionRecord, error)
	}

	AccountReader interface {
		Balance(ctx context.Context) (decimal.Decimal, error)
		Salary(ctx context.Context) (decimal.Decimal, error)
		// SalarySpent is the share of the monthly salary already spent, 0..1.
		SalarySpent(ctx context.Context) (decimal.Decimal, error)
	}

	ExpenseWriter interface {
		// RegisterExpense stores e and returns the balance after it.
		RegisterExpense(ctx context.Context, e core.ExpenseInput) (decimal.Decimal, error)
		FirstRegistry(ctx context.Context, in core.FirstRegistryInput) error
	}

	AccountWriter interface {
		UpdateSalary(ctx context.Context, amount decimal.Decimal) error
		UpdateSalaryDate(ctx context.Context, day int) error
		// AddBalance records an addition and returns the balance after it.
		AddBalance(ctx context.Context, a core.AdditionInput) (decimal.Decimal, error)
	}

	Authenticator interface {
		Login(ctx context.Context, c core.Credentials) (core.Session, error)
		Register(ctx context.Context, r core.Registration) error
	}

	// Backend is everything the UI needs from the budgeting service.
	Backend interface {
		ExpenseReader
		AdditionReader
		AccountReader
		ExpenseWriter
		AccountWriter
		Authenticator
	}
)
