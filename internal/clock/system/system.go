// Package system provides clocks for sessions: the wall clock and a fixed
// clock for reproducible runs.
package system

import (
	"sync"
	"time"
)

// Clock implements scraper.Clock using time.Now in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed returns a preset time that only moves when advanced.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixed creates a Fixed clock at t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t.UTC()}
}

// Now returns the preset time.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
