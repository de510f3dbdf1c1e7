package scraper

import "sync"

// Tracker counts outstanding work items across the intake queue and every
// handler. Children must be added before their parent is marked done, so the
// count only reaches zero when no work remains anywhere.
type Tracker struct {
	mu      sync.Mutex
	pending int
	idle    chan struct{}
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	idle := make(chan struct{})
	close(idle)
	return &Tracker{idle: idle}
}

// Add registers n new outstanding items.
func (t *Tracker) Add(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == 0 {
		t.idle = make(chan struct{})
	}
	t.pending += n
}

// Done marks one item as finished. Extra calls are ignored.
func (t *Tracker) Done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == 0 {
		return
	}
	t.pending--
	if t.pending == 0 {
		close(t.idle)
	}
}

// Pending returns the number of outstanding items.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Idle returns a channel that is closed while nothing is pending. A fresh
// channel is handed out after the next Add.
func (t *Tracker) Idle() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idle
}
