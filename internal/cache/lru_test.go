package cache

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[string](3, time.Hour)
	c.Set("2023", "a")
	c.Set("2024", "b")
	c.Set("2025", "c")
	c.Get("2023")
	c.Set("2026", "d")

	if _, ok := c.Get("2024"); ok {
		t.Error("2024 should have been evicted")
	}
	for _, k := range []string{"2023", "2025", "2026"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s missing", k)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestLRUExpiry(t *testing.T) {
	tests := []struct {
		name    string
		sliding bool
		// read after 50s, then check again 50s later
		wantAfterRead bool
	}{
		{"fixed deadline", false, false},
		{"sliding deadline", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newClock()
			c := NewLRUCache[int](10, time.Minute).WithClock(clock.Now)
			if tt.sliding {
				c.Sliding()
			}
			c.Set("s", 1)

			clock.Advance(50 * time.Second)
			if _, ok := c.Get("s"); !ok {
				t.Fatal("entry expired before its TTL")
			}
			clock.Advance(50 * time.Second)
			if _, ok := c.Get("s"); ok != tt.wantAfterRead {
				t.Errorf("live after read = %v, want %v", ok, tt.wantAfterRead)
			}
		})
	}
}

func TestLRUSetResetsDeadline(t *testing.T) {
	clock := newClock()
	c := NewLRUCache[string](10, time.Minute).WithClock(clock.Now)
	c.Set("k", "old")
	clock.Advance(45 * time.Second)
	c.Set("k", "new")
	clock.Advance(45 * time.Second)

	if v, ok := c.Get("k"); !ok || v != "new" {
		t.Errorf("Get = %q, %v", v, ok)
	}
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("deleted key still present")
	}
}

func TestLRUCleanExpired(t *testing.T) {
	clock := newClock()
	c := NewLRUCache[string](100, time.Minute).WithClock(clock.Now)

	c.Set("a", "1")
	c.Set("b", "2")
	clock.Advance(30 * time.Second)
	c.Set("c", "3")
	clock.Advance(31 * time.Second)

	if removed := c.CleanExpired(); removed != 2 {
		t.Errorf("CleanExpired() = %d, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestManagerSweep(t *testing.T) {
	clock := newClock()
	a := NewLRUCache[string](10, time.Second).WithClock(clock.Now)
	b := NewMemoryStore(10, time.Second)
	b.lru.WithClock(clock.Now)

	a.Set("x", "1")
	b.lru.Set("y", []byte("2"))
	clock.Advance(2 * time.Second)

	m := NewManager(nil)
	m.Register(a, b)
	if n := m.Sweep(); n != 2 {
		t.Errorf("Sweep() = %d, want 2", n)
	}

	m.StartCleanup(time.Hour)
	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}

func TestManagerStopWithoutStart(t *testing.T) {
	NewManager(nil).Stop()
}

func BenchmarkLRUGet(b *testing.B) {
	c := NewLRUCache[[]byte](1000, time.Hour)
	payload := []byte(`{"monthlyExpenses":{}}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if i%10 == 0 {
			c.Set("expenses", payload)
		} else {
			c.Get("expenses")
		}
	}
}
