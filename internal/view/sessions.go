package view

import (
	"time"

	"github.com/google/uuid"

	"gastos/internal/cache"
)

// Sessions keeps one State per browser, expiring idle ones after ttl.
type Sessions struct {
	states *cache.LRUCache[*State]
	now    func() time.Time
}

func NewSessions(max int, ttl time.Duration, now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{
		states: cache.NewLRUCache[*State](max, ttl).WithClock(now).Sliding(),
		now:    now,
	}
}

// Open starts a fresh session on the current year.
func (s *Sessions) Open() *State {
	st := NewState(uuid.NewString(), s.now())
	s.states.Set(st.ID(), st)
	return st
}

// Get returns the live session for id and extends its lifetime.
func (s *Sessions) Get(id string) (*State, bool) {
	if id == "" {
		return nil, false
	}
	return s.states.Get(id)
}

// Resolve returns the session for id, opening a new one if it is unknown or expired.
func (s *Sessions) Resolve(id string) (st *State, opened bool) {
	if st, ok := s.Get(id); ok {
		return st, false
	}
	return s.Open(), true
}

func (s *Sessions) Close(id string) {
	s.states.Delete(id)
}

func (s *Sessions) Len() int {
	return s.states.Len()
}

// CleanExpired lets a cache.Manager sweep idle sessions.
func (s *Sessions) CleanExpired() int {
	return s.states.CleanExpired()
}
