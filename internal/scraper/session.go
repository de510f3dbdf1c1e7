package scraper

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkmapper/internal/clock/system"
	"github.com/JakeFAU/linkmapper/internal/progress"
	"github.com/JakeFAU/linkmapper/internal/queue/memory"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Settings carries the user selections every task consults.
type Settings struct {
	// SkipHosts drops any URL whose host contains one of the entries.
	SkipHosts []string
	// OnlyHosts, when non-empty, drops URLs whose host contains none of the entries.
	OnlyHosts    []string
	DownloadsDir string
}

// Session is the owning context for one run. It is handed to the dispatcher,
// the registry and every handler.
type Session struct {
	RunID     uuid.UUID
	Intake    Queue[WorkItem]
	Tracker   *Tracker
	Downloads DownloadRegistry
	Settings  Settings
	Logger    *zap.Logger
	Events    progress.Emitter
	Clock     Clock
}

// Option customizes a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.Logger = logger
		}
	}
}

// WithEvents sets the progress emitter.
func WithEvents(events progress.Emitter) Option {
	return func(s *Session) {
		if events != nil {
			s.Events = events
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(clock Clock) Option {
	return func(s *Session) {
		if clock != nil {
			s.Clock = clock
		}
	}
}

// WithIntake replaces the default in-memory intake queue.
func WithIntake(q Queue[WorkItem]) Option {
	return func(s *Session) {
		if q != nil {
			s.Intake = q
		}
	}
}

// WithRunID fixes the run ID so collaborators built before the session can share it.
func WithRunID(id uuid.UUID) Option {
	return func(s *Session) {
		if id != uuid.Nil {
			s.RunID = id
		}
	}
}

// NewSession builds a Session with a fresh run ID, an in-memory intake queue
// and an idle tracker.
func NewSession(downloads DownloadRegistry, settings Settings, opts ...Option) (*Session, error) {
	if downloads == nil {
		return nil, fmt.Errorf("download registry is required")
	}
	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	s := &Session{
		RunID:     runID,
		Intake:    memory.NewQueue[WorkItem](),
		Tracker:   NewTracker(),
		Downloads: downloads,
		Settings:  settings,
		Logger:    zap.NewNop(),
		Events:    progress.Nop{},
		Clock:     system.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit places an item on the intake queue and counts it as outstanding.
func (s *Session) Submit(ctx context.Context, item WorkItem) error {
	s.Tracker.Add(1)
	if err := s.Intake.Enqueue(ctx, item); err != nil {
		s.Tracker.Done()
		return fmt.Errorf("submit %s: %w", displayURL(item.URL), err)
	}
	return nil
}

// Finish marks one outstanding item as fully handled.
func (s *Session) Finish() {
	s.Tracker.Done()
}

// Emit publishes a progress event stamped with the run ID and clock.
func (s *Session) Emit(stage progress.Stage, domain string, u *url.URL, note string) {
	s.Events.Emit(progress.Event{
		RunID:  progress.UUIDToBytes(s.RunID),
		TS:     s.Clock.Now(),
		Stage:  stage,
		Domain: domain,
		URL:    displayURL(u),
		Note:   note,
	})
}

func displayURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Redacted()
}
