// Package view owns the per-session calendar state and drives render passes:
// concurrent fetches, aggregation, grid building, and mutation follow-ups.
package view

import (
	"errors"
	"sync"
	"time"

	"gastos/internal/calendar"
)

var (
	// ErrSuperseded is returned by a render pass that finished after a newer one began.
	ErrSuperseded = errors.New("render superseded by a newer request")
	// ErrInvalidPeriod is returned for a period outside years 1..9999 or months 0..12.
	ErrInvalidPeriod = errors.New("invalid period")
)

// Period is the selected calendar range. A zero Month selects the whole year.
type Period struct {
	Year  int
	Month time.Month
}

// WholeYear reports whether every month is shown.
func (p Period) WholeYear() bool {
	return p.Month == 0
}

// Valid reports whether the period can be rendered.
func (p Period) Valid() bool {
	return p.Year >= 1 && p.Year <= 9999 && p.Month >= 0 && p.Month <= time.December
}

// Label is the heading for the period, e.g. "2024" or "Março de 2024".
func (p Period) Label() string {
	if p.WholeYear() {
		return itoa(p.Year)
	}
	return calendar.MonthName(p.Month) + " de " + itoa(p.Year)
}

// Phase is where a State is in its render cycle.
type Phase int

const (
	Idle Phase = iota
	Loading
	Rendered
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Rendered:
		return "rendered"
	default:
		return "idle"
	}
}

// State is one browser session's view. Only the latest render pass may commit into it.
type State struct {
	mu      sync.Mutex
	id      string
	period  Period
	phase   Phase
	gen     uint64
	current *Snapshot
}

// NewState starts a session on the whole year containing now.
func NewState(id string, now time.Time) *State {
	return &State{id: id, period: Period{Year: now.Year()}}
}

func (s *State) ID() string {
	return s.id
}

func (s *State) Period() Period {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.period
}

func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Generation is the token of the most recently started render pass.
func (s *State) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Current is the last committed snapshot, or nil before the first render.
func (s *State) Current() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// begin selects p and starts a new pass, returning its generation.
func (s *State) begin(p Period) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.period = p
	s.phase = Loading
	return s.gen
}

// commit installs snap if gen is still the latest pass.
func (s *State) commit(gen uint64, snap *Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.current = snap
	s.phase = Rendered
	return true
}

// abandon leaves Loading for a pass that produced nothing, if it is still the latest.
func (s *State) abandon(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	if s.current != nil {
		s.phase = Rendered
	} else {
		s.phase = Idle
	}
}
