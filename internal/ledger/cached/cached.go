// Package cached wraps a ledger.Backend with a read-through cache for the two
// calendar payloads. Entries are scoped per principal under an epoch key;
// dropping the epoch invalidates every entry of that principal at once.
package cached

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gastos/internal/cache"
	"gastos/internal/core"
	"gastos/internal/ledger"
	"gastos/internal/log"
)

type Backend struct {
	ledger.Backend
	store  cache.Store
	logger *log.Logger
}

func New(next ledger.Backend, store cache.Store, logger *log.Logger) *Backend {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Backend{Backend: next, store: store, logger: logger.WithComponent(log.ComponentCache)}
}

func epochKey(principal string) string {
	return "ledger:" + principal + ":epoch"
}

// epoch returns the principal's current epoch, creating one when absent.
func (b *Backend) epoch(ctx context.Context, principal string) (string, error) {
	v, ok, err := b.store.Get(ctx, epochKey(principal))
	if err != nil {
		return "", err
	}
	if ok {
		return string(v), nil
	}
	e := uuid.NewString()
	if err := b.store.Set(ctx, epochKey(principal), []byte(e)); err != nil {
		return "", err
	}
	return e, nil
}

// read serves key from the cache or loads it through fetch and stores the result.
// Cache failures fall through to fetch.
func read[T any](ctx context.Context, b *Backend, name string, fetch func(context.Context) (T, error)) (T, error) {
	principal := ledger.Principal(ctx)
	if principal == "" {
		return fetch(ctx)
	}
	epoch, err := b.epoch(ctx, principal)
	if err != nil {
		b.logger.WarnContext(ctx, "Cache unavailable, reading through", log.FieldError, err)
		return fetch(ctx)
	}
	key := fmt.Sprintf("ledger:%s:%s:%s", principal, epoch, name)

	if raw, ok, err := b.store.Get(ctx, key); err == nil && ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			b.logger.DebugContext(ctx, "Cache hit", log.FieldCacheKey, name)
			return v, nil
		}
	}

	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}
	if raw, err := json.Marshal(v); err == nil {
		if err := b.store.Set(ctx, key, raw); err != nil {
			b.logger.WarnContext(ctx, "Cache write failed", log.FieldCacheKey, name, log.FieldError, err)
		}
	}
	return v, nil
}

// ListExpenses implements ledger.ExpenseReader through the cache.
func (b *Backend) ListExpenses(ctx context.Context) (core.ExpensePayload, error) {
	return read(ctx, b, "expenses", b.Backend.ListExpenses)
}

// YearlyAdditions implements ledger.AdditionReader through the cache.
func (b *Backend) YearlyAdditions(ctx context.Context, year int) ([]core.AdditionRecord, error) {
	return read(ctx, b, "additions:"+strconv.Itoa(year), func(ctx context.Context) ([]core.AdditionRecord, error) {
		return b.Backend.YearlyAdditions(ctx, year)
	})
}

// Invalidate drops every cached payload of principal.
func (b *Backend) Invalidate(ctx context.Context, principal string) error {
	if principal == "" {
		return nil
	}
	return b.store.Delete(ctx, epochKey(principal))
}

func (b *Backend) invalidate(ctx context.Context) {
	if err := b.Invalidate(ctx, ledger.Principal(ctx)); err != nil {
		b.logger.WarnContext(ctx, "Cache invalidation failed", log.FieldError, err)
	}
}

func (b *Backend) RegisterExpense(ctx context.Context, e core.ExpenseInput) (decimal.Decimal, error) {
	balance, err := b.Backend.RegisterExpense(ctx, e)
	if err == nil {
		b.invalidate(ctx)
	}
	return balance, err
}

func (b *Backend) FirstRegistry(ctx context.Context, in core.FirstRegistryInput) error {
	err := b.Backend.FirstRegistry(ctx, in)
	if err == nil {
		b.invalidate(ctx)
	}
	return err
}

func (b *Backend) AddBalance(ctx context.Context, a core.AdditionInput) (decimal.Decimal, error) {
	balance, err := b.Backend.AddBalance(ctx, a)
	if err == nil {
		b.invalidate(ctx)
	}
	return balance, err
}
