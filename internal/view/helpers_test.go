package view

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
	"gastos/internal/events"
	"gastos/internal/ledger"
	"gastos/internal/ledger/memory"
	"gastos/internal/log"
)

var testNow = time.Date(2024, time.January, 20, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// seeded returns the demo store and a context logged in as the demo user.
func seeded(t *testing.T) (*memory.Store, context.Context) {
	t.Helper()
	s := memory.New(memory.WithClock(fixedClock), memory.WithSecret([]byte("test-secret")))
	ctx := context.Background()
	if err := memory.Seed(ctx, s); err != nil {
		t.Fatalf("seed: %v", err)
	}
	sess, err := s.Login(ctx, core.Credentials{Email: memory.DemoEmail, Password: memory.DemoPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return s, ledger.WithToken(ctx, sess.Token)
}

// recordingBackend counts every call and lets a test inject failures before delegating.
type recordingBackend struct {
	next  ledger.Backend
	calls atomic.Int32

	beforeList      func(ctx context.Context) error
	beforeAdditions func(ctx context.Context) error
	beforeBalance   func(ctx context.Context) error
	beforeSalary    func(ctx context.Context) error
	beforeWrite     func(ctx context.Context) error
}

var _ ledger.Backend = (*recordingBackend)(nil)

func hook(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (b *recordingBackend) ListExpenses(ctx context.Context) (core.ExpensePayload, error) {
	b.calls.Add(1)
	if err := hook(ctx, b.beforeList); err != nil {
		return core.ExpensePayload{}, err
	}
	return b.next.ListExpenses(ctx)
}

func (b *recordingBackend) YearlyAdditions(ctx context.Context, year int) ([]core.AdditionRecord, error) {
	b.calls.Add(1)
	if err := hook(ctx, b.beforeAdditions); err != nil {
		return nil, err
	}
	return b.next.YearlyAdditions(ctx, year)
}

func (b *recordingBackend) Balance(ctx context.Context) (decimal.Decimal, error) {
	b.calls.Add(1)
	if err := hook(ctx, b.beforeBalance); err != nil {
		return decimal.Zero, err
	}
	return b.next.Balance(ctx)
}

func (b *recordingBackend) Salary(ctx context.Context) (decimal.Decimal, error) {
	b.calls.Add(1)
	if err := hook(ctx, b.beforeSalary); err != nil {
		return decimal.Zero, err
	}
	return b.next.Salary(ctx)
}

func (b *recordingBackend) SalarySpent(ctx context.Context) (decimal.Decimal, error) {
	b.calls.Add(1)
	return b.next.SalarySpent(ctx)
}

func (b *recordingBackend) RegisterExpense(ctx context.Context, e core.ExpenseInput) (decimal.Decimal, error) {
	b.calls.Add(1)
	if err := hook(ctx, b.beforeWrite); err != nil {
		return decimal.Zero, err
	}
	return b.next.RegisterExpense(ctx, e)
}

func (b *recordingBackend) FirstRegistry(ctx context.Context, in core.FirstRegistryInput) error {
	b.calls.Add(1)
	if err := hook(ctx, b.beforeWrite); err != nil {
		return err
	}
	return b.next.FirstRegistry(ctx, in)
}

func (b *recordingBackend) UpdateSalary(ctx context.Context, amount decimal.Decimal) error {
	b.calls.Add(1)
	if err := hook(ctx, b.beforeWrite); err != nil {
		return err
	}
	return b.next.UpdateSalary(ctx, amount)
}

func (b *recordingBackend) UpdateSalaryDate(ctx context.Context, day int) error {
	b.calls.Add(1)
	if err := hook(ctx, b.beforeWrite); err != nil {
		return err
	}
	return b.next.UpdateSalaryDate(ctx, day)
}

func (b *recordingBackend) AddBalance(ctx context.Context, a core.AdditionInput) (decimal.Decimal, error) {
	b.calls.Add(1)
	if err := hook(ctx, b.beforeWrite); err != nil {
		return decimal.Zero, err
	}
	return b.next.AddBalance(ctx, a)
}

func (b *recordingBackend) Login(ctx context.Context, c core.Credentials) (core.Session, error) {
	b.calls.Add(1)
	return b.next.Login(ctx, c)
}

func (b *recordingBackend) Register(ctx context.Context, r core.Registration) error {
	b.calls.Add(1)
	return b.next.Register(ctx, r)
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*events.Message
}

func (p *recordingPublisher) Publish(_ context.Context, msg *events.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

func newTestController(b ledger.Backend, pub events.Publisher) *Controller {
	if pub == nil {
		pub = events.Nop{}
	}
	return NewController(b, WithClock(fixedClock), WithPublisher(pub), WithLogger(log.Discard()))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
