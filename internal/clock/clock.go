package clock

import (
	"sync"
	"time"
)

// Clock is the trusted time source for lockout and rate window comparisons.
// Client-supplied timestamps never reach it.
type Clock interface {
	Now() time.Time
}

// Real reads the process clock. time.Now carries a monotonic reading, so
// comparisons between two readings are immune to wall-clock steps.
type Real struct{}

// Now returns the current time
func (Real) Now() time.Time {
	return time.Now()
}

// Manual is a clock that only moves when told to. Used in tests.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a Manual clock starting at t
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now returns the clock's current time
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Set moves the clock to t
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}
