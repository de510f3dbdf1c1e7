// Package memory keeps unsupported links in process memory for development
// runs and tests.
package memory

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"
)

// Entry is one recorded unsupported link.
type Entry struct {
	URL         string    `json:"url"`
	ParentTitle string    `json:"parent_title,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// UnsupportedStore provides an in-memory unsupported-links log.
type UnsupportedStore struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

// NewUnsupportedStore constructs an UnsupportedStore.
func NewUnsupportedStore() *UnsupportedStore {
	return &UnsupportedStore{now: func() time.Time { return time.Now().UTC() }}
}

// Record appends u in arrival order.
func (s *UnsupportedStore) Record(_ context.Context, u *url.URL, parentTitle string) error {
	if u == nil {
		return errors.New("url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, Entry{
		URL:         u.String(),
		ParentTitle: parentTitle,
		RecordedAt:  s.now(),
	})
	return nil
}

// Entries returns a copy of everything recorded so far.
func (s *UnsupportedStore) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// URLs returns just the recorded URLs.
func (s *UnsupportedStore) URLs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.URL)
	}
	return out
}

// Close is a no-op.
func (s *UnsupportedStore) Close() error {
	return nil
}
