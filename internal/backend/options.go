// Package backend assembles the ledger the UI reads from: the REST client or
// the in-process ledger, behind the shared read cache.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gastos/internal/cache"
	"gastos/internal/config"
	"gastos/internal/ledger"
	"gastos/internal/ledger/cached"
)

// Kind selects where the ledger lives.
type Kind string

const (
	// HTTP calls the budgeting REST API.
	HTTP Kind = "http"
	// Memory keeps a seeded ledger in process.
	Memory Kind = "memory"
)

// CacheKind selects where cached ledger reads live.
type CacheKind string

const (
	MemoryCache CacheKind = "memory"
	RedisCache  CacheKind = "redis"
)

// readsPerSession is how many cache entries one session keeps warm: the
// expenses and additions reads plus the principal's epoch key.
const readsPerSession = 3

type Options struct {
	Kind       Kind
	APIBaseURL string
	APITimeout time.Duration
	// Seed installs the demo account in a Memory ledger.
	Seed bool

	Cache     CacheKind
	CacheTTL  time.Duration
	CacheSize int
	RedisURL  string
}

// FromAppConfig derives Options from the process configuration.
func FromAppConfig(c *config.Config) (Options, error) {
	if c == nil {
		return Options{}, errors.New("backend: nil config")
	}
	o := Options{
		Kind:       Kind(c.DataBackend),
		APIBaseURL: c.APIBaseURL,
		APITimeout: c.APITimeout,
		Seed:       true,
		Cache:      CacheKind(c.CacheBackend),
		CacheTTL:   c.CacheTTL,
		CacheSize:  c.SessionMax * readsPerSession,
		RedisURL:   c.RedisURL,
	}
	return o, o.Validate()
}

func (o Options) Validate() error {
	switch o.Kind {
	case HTTP:
		if o.APIBaseURL == "" {
			return errors.New("backend: http ledger needs an API base URL")
		}
	case Memory:
	default:
		return fmt.Errorf("backend: unknown ledger kind %q", o.Kind)
	}

	switch o.Cache {
	case MemoryCache:
		if o.CacheSize < 1 {
			return fmt.Errorf("backend: memory cache size %d, want at least 1", o.CacheSize)
		}
	case RedisCache:
		if o.RedisURL == "" {
			return errors.New("backend: redis cache needs a Redis URL")
		}
	default:
		return fmt.Errorf("backend: unknown cache kind %q", o.Cache)
	}
	return nil
}

// Result is the assembled ledger plus what its owner has to run around it.
type Result struct {
	Backend *cached.Backend
	// Cleaners should be registered with a cache.Manager.
	Cleaners []cache.Cleaner
	// Ready reports whether the cache store is reachable.
	Ready func(ctx context.Context) error
	// Cleanup releases connections. Nil when there is nothing to release.
	Cleanup func() error
}

var _ ledger.Backend = (*cached.Backend)(nil)
