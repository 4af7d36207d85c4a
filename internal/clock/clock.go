// Package clock supplies the ledger's notion of "now" in unix seconds.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time as unix seconds.
type Clock interface {
	Now() int64
}

// System reads the wall clock.
type System struct{}

// Now implements Clock.
func (System) Now() int64 { return time.Now().Unix() }

// Manual is a settable clock for tests and replays.
type Manual struct {
	mu  sync.Mutex
	now int64
}

// NewManual creates a Manual clock starting at now.
func NewManual(now int64) *Manual {
	return &Manual{now: now}
}

// Now implements Clock.
func (m *Manual) Now() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to now.
func (m *Manual) Set(now int64) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Advance moves the clock forward by d, truncated to whole seconds.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += int64(d / time.Second)
	m.mu.Unlock()
}
