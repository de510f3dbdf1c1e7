// Package mapper consumes the intake queue, routes every URL to its domain
// handler or the fallback cascade, and detects when all work has finished.
package mapper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkmapper/internal/fallback"
	"github.com/JakeFAU/linkmapper/internal/progress"
	"github.com/JakeFAU/linkmapper/internal/registry"
	"github.com/JakeFAU/linkmapper/internal/router"
	"github.com/JakeFAU/linkmapper/internal/scraper"
)

// State is the dispatcher lifecycle state.
type State string

// Dispatcher states.
const (
	StateIdle    State = "IDLE"
	StateRunning State = "RUNNING"
	StateDrained State = "DRAINED"
)

const defaultPollInterval = 50 * time.Millisecond

// HandlerSource resolves routes to live handlers. registry.Registry satisfies it.
type HandlerSource interface {
	GetOrCreate(ctx context.Context, route router.Route) (scraper.Handler, error)
	Handlers() []scraper.Handler
}

// Fallback handles items no domain handler takes. fallback.Cascade satisfies it.
type Fallback interface {
	Handle(ctx context.Context, item scraper.WorkItem) fallback.Outcome
}

// Stats is a snapshot of dispatch counters.
type Stats struct {
	Routed      map[scraper.DomainKey]int `json:"routed"`
	Skipped     int                       `json:"skipped"`
	Dropped     int                       `json:"dropped"`
	DirectFiles int                       `json:"direct_files"`
	Delegated   int                       `json:"delegated"`
	Unsupported int                       `json:"unsupported"`
	// Rerouted counts items whose handler family failed to start.
	Rerouted int `json:"rerouted"`
}

// TotalRouted sums Routed across keys.
func (s Stats) TotalRouted() int {
	total := 0
	for _, n := range s.Routed {
		total += n
	}
	return total
}

// Config holds the dispatcher dependencies.
type Config struct {
	Session  *scraper.Session
	Handlers HandlerSource
	Fallback Fallback
	// Lookup defaults to router.Lookup.
	Lookup       func(host string) (router.Route, bool)
	PollInterval time.Duration
}

// Mapper is the dispatch loop.
type Mapper struct {
	session  *scraper.Session
	handlers HandlerSource
	fallback Fallback
	filter   HostFilter
	lookup   func(host string) (router.Route, bool)
	poll     time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	state State
	stats Stats
}

// New builds a Mapper.
func New(cfg Config) (*Mapper, error) {
	if cfg.Session == nil {
		return nil, errors.New("mapper: session is required")
	}
	if cfg.Handlers == nil {
		return nil, errors.New("mapper: handler source is required")
	}
	if cfg.Fallback == nil {
		return nil, errors.New("mapper: fallback is required")
	}
	lookup := cfg.Lookup
	if lookup == nil {
		lookup = router.Lookup
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Mapper{
		session:  cfg.Session,
		handlers: cfg.Handlers,
		fallback: cfg.Fallback,
		filter:   NewHostFilter(cfg.Session.Settings.SkipHosts, cfg.Session.Settings.OnlyHosts),
		lookup:   lookup,
		poll:     poll,
		logger:   cfg.Session.Logger.Named("mapper"),
		state:    StateIdle,
		stats:    Stats{Routed: make(map[scraper.DomainKey]int)},
	}, nil
}

// Run dispatches intake items until all work is complete or ctx ends.
func (m *Mapper) Run(ctx context.Context) error {
	m.setState(StateRunning)
	m.logger.Info("dispatch loop started", zap.String("run_id", m.session.RunID.String()))
	for {
		if item, ok := m.session.Intake.TryDequeue(); ok {
			m.Dispatch(ctx, item)
			continue
		}
		if m.Complete() {
			m.setState(StateDrained)
			m.session.Emit(progress.StageDrained, "", nil, "")
			stats := m.Stats()
			m.logger.Info("dispatch loop drained",
				zap.Int("routed", stats.TotalRouted()),
				zap.Int("skipped", stats.Skipped),
				zap.Int("unsupported", stats.Unsupported),
			)
			return nil
		}
		if err := m.wait(ctx); err != nil {
			return err
		}
	}
}

// wait blocks until new intake arrives, the tracker drains, or a poll tick.
func (m *Mapper) wait(ctx context.Context) error {
	idle := m.session.Tracker.Idle()
	select {
	case <-idle:
		// Already idle but not complete; poll until handlers settle.
		idle = nil
	default:
	}
	timer := time.NewTimer(m.poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("dispatch canceled: %w", ctx.Err())
	case <-m.session.Intake.Ready():
	case <-idle:
	case <-timer.C:
	}
	return nil
}

// Dispatch routes a single item taken from the intake queue.
func (m *Mapper) Dispatch(ctx context.Context, item scraper.WorkItem) {
	if item.URL == nil || item.URL.Hostname() == "" {
		m.logger.Debug("dropping url without host", zap.Stringer("url", item.URL))
		m.count(func(s *Stats) { s.Dropped++ })
		m.session.Emit(progress.StageDropped, "", item.URL, "")
		m.session.Finish()
		return
	}
	host := item.URL.Hostname()
	if m.filter.Skip(host) {
		m.logger.Info("Skipping URL by config selections", zap.String("url", item.URL.String()))
		m.count(func(s *Stats) { s.Skipped++ })
		m.session.Emit(progress.StageSkipped, "", item.URL, "")
		m.session.Finish()
		return
	}
	item.URL = stripTrailingSlash(item.URL)

	if route, ok := m.lookup(host); ok {
		if m.route(ctx, route, item) {
			runtime.Gosched()
			return
		}
	}
	outcome := m.fallback.Handle(ctx, item)
	m.count(func(s *Stats) {
		switch outcome {
		case fallback.DirectFile:
			s.DirectFiles++
		case fallback.Delegated:
			s.Delegated++
		default:
			s.Unsupported++
		}
	})
	m.session.Finish()
}

// route hands item to the route's handler. It reports false when the item
// must go to the fallback cascade instead.
func (m *Mapper) route(ctx context.Context, route router.Route, item scraper.WorkItem) bool {
	h, err := m.handlers.GetOrCreate(ctx, route)
	if err != nil {
		m.logger.Warn("handler unavailable, using fallback",
			zap.String("url", item.URL.String()),
			zap.String("crawler", route.Crawler),
			zap.Error(err),
		)
		m.count(func(s *Stats) { s.Rerouted++ })
		return false
	}
	if err := h.Enqueue(ctx, item); err != nil {
		m.logger.Error("handler enqueue failed", zap.String("url", item.URL.String()), zap.Error(err))
		m.count(func(s *Stats) { s.Rerouted++ })
		return false
	}
	m.count(func(s *Stats) { s.Routed[route.Key]++ })
	m.session.Emit(progress.StageRouted, string(route.Key), item.URL, "")
	return true
}

// Complete reports whether the intake queue is empty, every created handler
// is complete and no tracked work item is outstanding.
func (m *Mapper) Complete() bool {
	if m.session.Intake.Len() > 0 {
		return false
	}
	for _, h := range m.handlers.Handlers() {
		if !h.Complete() {
			return false
		}
	}
	return m.session.Tracker.Pending() == 0
}

// State returns the current lifecycle state.
func (m *Mapper) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns a copy of the dispatch counters.
func (m *Mapper) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.stats
	out.Routed = make(map[scraper.DomainKey]int, len(m.stats.Routed))
	for k, v := range m.stats.Routed {
		out.Routed[k] = v
	}
	return out
}

func (m *Mapper) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

func (m *Mapper) count(fn func(*Stats)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.stats)
}

func stripTrailingSlash(u *url.URL) *url.URL {
	if !strings.HasSuffix(u.Path, "/") {
		return u
	}
	out := *u
	out.Path = strings.TrimSuffix(u.Path, "/")
	out.RawPath = strings.TrimSuffix(u.RawPath, "/")
	return &out
}

var _ HandlerSource = (*registry.Registry)(nil)
