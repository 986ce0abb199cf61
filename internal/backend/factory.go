package backend

import (
	"context"
	"fmt"

	"gastos/internal/cache"
	"gastos/internal/ledger"
	"gastos/internal/ledger/api"
	"gastos/internal/ledger/cached"
	"gastos/internal/ledger/memory"
	"gastos/internal/log"
)

const redisKeyPrefix = "gastos:"

// Factory builds backends from Options.
type Factory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Factory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend builds the ledger named by o and wraps it in the read cache.
func (f *Factory) CreateBackend(ctx context.Context, o Options) (*Result, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	var (
		next ledger.Backend
		err  error
	)
	if o.Kind == HTTP {
		next, err = f.remote(o)
	} else {
		next, err = f.local(ctx, o)
	}
	if err != nil {
		return nil, err
	}
	return f.cache(ctx, next, o)
}

func (f *Factory) remote(o Options) (ledger.Backend, error) {
	client, err := api.New(o.APIBaseURL, o.APITimeout, api.WithLogger(f.logger))
	if err != nil {
		return nil, fmt.Errorf("API client: %w", err)
	}
	f.logger.Info("Using REST ledger",
		log.FieldEndpoint, o.APIBaseURL, "timeout", o.APITimeout.String())
	return client, nil
}

func (f *Factory) local(ctx context.Context, o Options) (ledger.Backend, error) {
	store := memory.New()
	if !o.Seed {
		f.logger.Info("Using empty in-process ledger")
		return store, nil
	}
	if err := memory.Seed(ctx, store); err != nil {
		return nil, fmt.Errorf("seed in-process ledger: %w", err)
	}
	f.logger.Info("Using in-process ledger with demo account", "email", memory.DemoEmail)
	return store, nil
}

func (f *Factory) cache(ctx context.Context, next ledger.Backend, o Options) (*Result, error) {
	if o.Cache == RedisCache {
		store, err := cache.NewRedisStore(ctx, o.RedisURL, redisKeyPrefix, o.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("redis read cache: %w", err)
		}
		f.logger.Info("Caching reads in Redis", "ttl", o.CacheTTL.String())
		return &Result{
			Backend: cached.New(next, store, f.logger),
			Ready:   store.Ping,
			Cleanup: store.Close,
		}, nil
	}

	store := cache.NewMemoryStore(o.CacheSize, o.CacheTTL)
	f.logger.Info("Caching reads in process", "ttl", o.CacheTTL.String(), "max_entries", o.CacheSize)
	return &Result{
		Backend:  cached.New(next, store, f.logger),
		Cleaners: []cache.Cleaner{store},
		Ready:    func(context.Context) error { return nil },
	}, nil
}
