package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache bounds entries by count and by age. The least recently used entry
// goes first when the cache is full.
//
// With sliding expiry every hit restarts the entry's TTL, which is how idle
// view sessions time out while active ones live on.
type LRUCache[T any] struct {
	mu      sync.Mutex
	max     int
	ttl     time.Duration
	sliding bool
	now     func() time.Time
	index   map[string]*list.Element
	order   *list.List // front is most recent
}

type entry[T any] struct {
	key      string
	value    T
	deadline time.Time
}

// NewLRUCache holds at most maxSize entries, each for ttl after it was stored.
func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	return &LRUCache[T]{
		max:   maxSize,
		ttl:   ttl,
		now:   time.Now,
		index: make(map[string]*list.Element),
		order: list.New(),
	}
}

// WithClock replaces the clock used for expiry.
func (c *LRUCache[T]) WithClock(now func() time.Time) *LRUCache[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// Sliding makes every Get extend the entry by a full TTL.
func (c *LRUCache[T]) Sliding() *LRUCache[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sliding = true
	return c
}

// live returns the element for key, dropping it if its deadline passed. Callers hold c.mu.
func (c *LRUCache[T]) live(key string, now time.Time) *list.Element {
	el, ok := c.index[key]
	if !ok {
		return nil
	}
	if now.After(el.Value.(*entry[T]).deadline) {
		c.drop(el)
		return nil
	}
	return el
}

func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	el := c.live(key, now)
	if el == nil {
		var zero T
		return zero, false
	}
	e := el.Value.(*entry[T])
	if c.sliding {
		e.deadline = now.Add(c.ttl)
	}
	c.order.MoveToFront(el)
	return e.value, true
}

// Set stores value under key, replacing any previous entry and its deadline.
func (c *LRUCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry[T]{key: key, value: value, deadline: c.now().Add(c.ttl)}
	if el, ok := c.index[key]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return
	}
	c.index[key] = c.order.PushFront(e)
	for c.order.Len() > c.max {
		c.drop(c.order.Back())
	}
}

func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.drop(el)
	}
}

func (c *LRUCache[T]) drop(el *list.Element) {
	delete(c.index, el.Value.(*entry[T]).key)
	c.order.Remove(el)
}

// CleanExpired implements Cleaner.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*entry[T]).deadline) {
			c.drop(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Len counts stored entries, expired ones included until they are swept.
func (c *LRUCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}
