// Package ratelimit throttles form submissions per client IP.
//
// Each client gets a token bucket holding a minute's worth of requests that
// refills continuously, so a burst is allowed but sustained traffic is capped
// at the per-minute rate.
package ratelimit

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Config configures a Limiter.
type Config struct {
	RequestsPerMinute int
	// IdleAfter is how long a client may stay silent before its bucket is forgotten.
	IdleAfter time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

func DefaultConfig() Config {
	return Config{RequestsPerMinute: 60, IdleAfter: 10 * time.Minute}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks one bucket per client. It implements cache.Cleaner so idle
// buckets are swept with the other in-process caches.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
	hits    atomic.Int64
}

func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.IdleAfter <= 0 {
		config.IdleAfter = def.IdleAfter
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Every(time.Minute / time.Duration(config.RequestsPerMinute)),
		burst:   config.RequestsPerMinute,
		idle:    config.IdleAfter,
		now:     config.Clock,
	}
}

// Allow spends one token from client's bucket.
func (rl *Limiter) Allow(client string) bool {
	now := rl.now()

	rl.mu.Lock()
	b, ok := rl.buckets[client]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[client] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)
	rl.mu.Unlock()

	if !allowed {
		rl.hits.Add(1)
	}
	return allowed
}

// CleanExpired forgets clients idle for longer than IdleAfter.
func (rl *Limiter) CleanExpired() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idle)
	removed := 0
	for client, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, client)
			removed++
		}
	}
	return removed
}

func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Metrics are the limiter counters exported on /metrics.
type Metrics struct {
	TotalHits   int64
	ClientCount int64
}

func (rl *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalHits:   rl.hits.Load(),
		ClientCount: int64(rl.ActiveClients()),
	}
}

// Middleware limits the requests for which applies reports true (all of them
// when applies is nil), keyed by clientOf. onLimit writes the refusal.
func (rl *Limiter) Middleware(clientOf func(*http.Request) string, applies func(*http.Request) bool, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	if onLimit == nil {
		onLimit = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "60")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if (applies == nil || applies(r)) && !rl.Allow(clientOf(r)) {
				onLimit(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
