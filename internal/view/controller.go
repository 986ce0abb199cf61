package view

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"gastos/internal/calendar"
	"gastos/internal/core"
	"gastos/internal/events"
	"gastos/internal/ledger"
	"gastos/internal/log"
)

// Controller runs render passes and mutations against a ledger backend.
type Controller struct {
	backend    ledger.Backend
	publisher  events.Publisher
	now        func() time.Time
	logger     *log.Logger
	structured *log.StructuredLogger
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the wall clock used for the today marker.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithPublisher announces successful mutations to other instances.
func WithPublisher(p events.Publisher) Option {
	return func(c *Controller) { c.publisher = p }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController wires a controller to backend.
func NewController(backend ledger.Backend, opts ...Option) *Controller {
	c := &Controller{
		backend:   backend,
		publisher: events.Nop{},
		now:       time.Now,
		logger:    log.New(log.DefaultConfig()),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent(log.ComponentView)
	c.structured = log.NewStructuredLogger(c.logger)
	return c
}

// Render runs one pass for p and commits it into st unless a newer pass started meanwhile.
//
// Balance, salary and spent share load concurrently and degrade to a placeholder
// on failure. Expenses and additions are joined; if either fails the calendar is
// aggregated from empty data.
func (c *Controller) Render(ctx context.Context, st *State, p Period) (*Snapshot, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w %d/%d", ErrInvalidPeriod, p.Year, p.Month)
	}
	gen := st.begin(p)
	logger := c.logger.With(log.Period(p.Year, int(p.Month), gen)...)
	start := time.Now()

	var (
		balance, salary, spent figureResult
		expenses               core.ExpensePayload
		additions              []core.AdditionRecord
		ledgerErr              error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { balance = fetchFigure(gctx, c.backend.Balance); return nil })
	g.Go(func() error { salary = fetchFigure(gctx, c.backend.Salary); return nil })
	g.Go(func() error { spent = fetchFigure(gctx, c.backend.SalarySpent); return nil })
	g.Go(func() error {
		expenses, additions, ledgerErr = c.loadLedger(gctx, p.Year)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		st.abandon(gen)
		return nil, err
	}

	for _, f := range []struct {
		name string
		figureResult
	}{{"balance", balance}, {"salary", salary}, {"salary_spent", spent}} {
		if f.err != nil {
			logger.WarnContext(ctx, "Figure fetch failed", log.FieldFigure, f.name, log.FieldError, f.err)
		}
	}

	l := calendar.EmptyLedger(p.Year)
	if ledgerErr != nil {
		logger.WarnContext(ctx, "Ledger fetch failed, rendering empty calendar",
			log.FieldOperation, log.OpFetch,
			log.FieldError, ledgerErr)
	} else {
		l = calendar.Aggregate(p.Year, expenses, additions)
	}

	today := c.now()
	snap := &Snapshot{
		Period:       p,
		Generation:   gen,
		Today:        today,
		Figures:      buildFigures(balance, salary, spent),
		Degraded:     ledgerErr != nil,
		Unauthorized: isUnauthorized(ledgerErr, balance.err, salary.err),
	}
	if p.WholeYear() {
		snap.Months = calendar.BuildYear(l, today)
	} else {
		snap.Months = []calendar.Month{calendar.BuildMonth(l, p.Month, today)}
	}

	if !st.commit(gen, snap) {
		logger.DebugContext(ctx, "Render pass superseded")
		return nil, ErrSuperseded
	}
	logger.DebugContext(ctx, "Render pass committed",
		log.FieldOperation, log.OpRender,
		log.Millis(time.Since(start)))
	return snap, nil
}

// loadLedger fetches the expense and addition payloads with join semantics.
func (c *Controller) loadLedger(ctx context.Context, year int) (core.ExpensePayload, []core.AdditionRecord, error) {
	var (
		expenses  core.ExpensePayload
		additions []core.AdditionRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		expenses, err = c.backend.ListExpenses(gctx)
		if err != nil {
			return fmt.Errorf("list expenses: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		additions, err = c.backend.YearlyAdditions(gctx, year)
		if err != nil {
			return fmt.Errorf("yearly additions: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.ExpensePayload{}, nil, err
	}
	return expenses, additions, nil
}

type figureResult struct {
	value decimal.Decimal
	err   error
}

func fetchFigure(ctx context.Context, fetch func(context.Context) (decimal.Decimal, error)) figureResult {
	v, err := fetch(ctx)
	return figureResult{value: v, err: err}
}

func buildFigures(balance, salary, spent figureResult) Figures {
	f := Figures{Balance: failedFigure(), Salary: failedFigure(), Spent: failedFigure()}
	if balance.err == nil {
		f.Balance = Figure{Text: core.FormatBRL(balance.value), OK: true}
	}
	if salary.err == nil {
		f.Salary = Figure{Text: core.FormatBRL(salary.value), OK: true}
		f.NeedsOnboarding = salary.value.IsZero()
	}
	if spent.err == nil {
		f.Spent = Figure{Text: core.FormatPercent(spent.value), OK: true}
		f.SpentLevel = SpentLevel(spent.value)
	}
	return f
}

func isUnauthorized(errs ...error) bool {
	for _, err := range errs {
		if errors.Is(err, ledger.ErrUnauthorized) {
			return true
		}
	}
	return false
}

// Refresh re-renders the current period.
func (c *Controller) Refresh(ctx context.Context, st *State) (*Snapshot, error) {
	return c.Render(ctx, st, st.Period())
}

// PrevYear moves the selection one year back, keeping the selected month.
func (c *Controller) PrevYear(ctx context.Context, st *State) (*Snapshot, error) {
	p := st.Period()
	p.Year--
	return c.Render(ctx, st, p)
}

// NextYear moves the selection one year forward, keeping the selected month.
func (c *Controller) NextYear(ctx context.Context, st *State) (*Snapshot, error) {
	p := st.Period()
	p.Year++
	return c.Render(ctx, st, p)
}

// SelectMonth narrows the view to one month of the selected year.
func (c *Controller) SelectMonth(ctx context.Context, st *State, m time.Month) (*Snapshot, error) {
	p := st.Period()
	p.Month = m
	return c.Render(ctx, st, p)
}

// ShowYear widens the view back to all twelve months.
func (c *Controller) ShowYear(ctx context.Context, st *State) (*Snapshot, error) {
	p := st.Period()
	p.Month = 0
	return c.Render(ctx, st, p)
}
