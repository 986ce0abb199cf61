package memory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
	"gastos/internal/ledger"
)

// Demo account created by Seed.
const (
	DemoEmail    = "demo@gastos.local"
	DemoPassword = "demo-password-123"
)

// Seed registers the demo account and fills the current year with sample data.
func Seed(ctx context.Context, s *Store) error {
	if err := s.Register(ctx, core.Registration{FirstName: "Demo", LastName: "Gastos", Email: DemoEmail, Password: DemoPassword}); err != nil {
		return err
	}
	sess, err := s.Login(ctx, core.Credentials{Email: DemoEmail, Password: DemoPassword})
	if err != nil {
		return err
	}
	ctx = ledger.WithToken(ctx, sess.Token)

	year := s.now().Year()
	day := func(m time.Month, d int) time.Time { return time.Date(year, m, d, 12, 0, 0, 0, time.UTC) }
	amount := func(v string) decimal.Decimal { return decimal.RequireFromString(v) }

	if err := s.FirstRegistry(ctx, core.FirstRegistryInput{
		CurrentBalance: amount("2500"),
		MonthlySalary:  amount("5000"),
		SalaryDate:     5,
		Expenses: []core.ExpenseInput{
			{Name: "Aluguel", Amount: amount("1500"), Date: day(time.January, 5), Category: core.Housing, Recurrent: true},
			{Name: "Mercado", Amount: amount("320.45"), Date: day(time.January, 12), Category: core.Food},
			{Name: "Plano de saúde", Amount: amount("410"), Date: day(time.February, 10), Category: core.Health, Recurrent: true},
			{Name: "Cinema", Amount: amount("60"), Date: day(time.March, 22), Category: core.Entertainment},
		},
	}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.account(ctx)
	if err != nil {
		return err
	}
	a.additions = append(a.additions,
		addition{amount: amount("5000"), description: "Salário", createdAt: day(time.January, 5)},
		addition{amount: amount("5000"), description: "Salário", createdAt: day(time.February, 5)},
		addition{amount: amount("250"), description: "Freela", createdAt: day(time.March, 22)},
	)
	return nil
}
