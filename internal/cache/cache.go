// Package cache holds the in-process LRU used for view sessions and the
// byte-oriented stores that back the ledger read cache.
package cache

import (
	"context"
	"sync"
	"time"

	"gastos/internal/log"
)

// Store is a byte-oriented cache that may be shared between instances.
type Store interface {
	// Get returns the value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

// Cleaner is anything holding entries that expire without being read.
type Cleaner interface {
	CleanExpired() int
}

// Manager sweeps registered Cleaners on an interval.
type Manager struct {
	mu       sync.Mutex
	cleaners []Cleaner
	logger   *log.Logger

	cancel context.CancelFunc
	done   chan struct{}
	stop   sync.Once
}

func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Manager{logger: logger.WithComponent(log.ComponentCache)}
}

func (m *Manager) Register(cleaners ...Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleaners = append(m.cleaners, cleaners...)
}

// Sweep runs one pass and returns how many entries were evicted.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	cleaners := append([]Cleaner(nil), m.cleaners...)
	m.mu.Unlock()

	total := 0
	for _, c := range cleaners {
		total += c.CleanExpired()
	}
	return total
}

// StartCleanup sweeps every interval until Stop. Calling it twice has no effect.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx, interval, m.done)
}

func (m *Manager) run(ctx context.Context, interval time.Duration, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("Expired cache entries removed", "removed", n)
			}
		}
	}
}

// Stop ends the sweep loop and waits for it. Safe to call more than once.
func (m *Manager) Stop() {
	m.stop.Do(func() {
		m.mu.Lock()
		cancel, done := m.cancel, m.done
		m.mu.Unlock()
		if cancel == nil {
			return
		}
		cancel()
		<-done
	})
}
