// Package registry creates domain handlers lazily and shares one instance per
// handler family across all of the family's routing keys.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkmapper/internal/progress"
	"github.com/JakeFAU/linkmapper/internal/router"
	"github.com/JakeFAU/linkmapper/internal/scraper"
)

var (
	// ErrHandlerFailed is returned for every route of a family whose startup failed.
	ErrHandlerFailed = errors.New("handler startup failed")
	// ErrUnknownCrawler means no factory is registered for the route's family.
	ErrUnknownCrawler = errors.New("no factory for crawler")
)

// Factory constructs the handler for one family.
type Factory func(session *scraper.Session, route router.Route) (scraper.Handler, error)

// Registry maps routing keys to live handlers.
type Registry struct {
	session   *scraper.Session
	factories map[string]Factory
	logger    *zap.Logger

	mu       sync.RWMutex
	byKey    map[scraper.DomainKey]scraper.Handler
	byFamily map[string]scraper.Handler
	failed   map[string]error
}

// New builds a Registry that uses factories keyed by crawler family.
func New(session *scraper.Session, factories map[string]Factory) *Registry {
	logger := zap.NewNop()
	if session != nil && session.Logger != nil {
		logger = session.Logger.Named("registry")
	}
	copied := make(map[string]Factory, len(factories))
	for name, f := range factories {
		copied[name] = f
	}
	return &Registry{
		session:   session,
		factories: copied,
		logger:    logger,
		byKey:     make(map[scraper.DomainKey]scraper.Handler),
		byFamily:  make(map[string]scraper.Handler),
		failed:    make(map[string]error),
	}
}

// Get returns the handler already bound to key.
func (r *Registry) Get(key scraper.DomainKey) (scraper.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byKey[key]
	return h, ok
}

// GetOrCreate returns the handler for route, creating and starting it when
// neither the key nor any sibling key of its family has one yet. Creation,
// startup, download registration and the run-loop spawn happen under the
// registry lock, so a family is started at most once.
func (r *Registry) GetOrCreate(ctx context.Context, route router.Route) (scraper.Handler, error) {
	r.mu.RLock()
	h, ok := r.byKey[route.Key]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.byKey[route.Key]; ok {
		return h, nil
	}
	if err, ok := r.failed[route.Crawler]; ok {
		return nil, fmt.Errorf("%s: %w", route.Crawler, errors.Join(ErrHandlerFailed, err))
	}
	if h, ok := r.byFamily[route.Crawler]; ok {
		r.byKey[route.Key] = h
		return h, nil
	}

	h, err := r.start(ctx, route)
	if err != nil {
		r.failed[route.Crawler] = err
		r.session.Emit(progress.StageHandlerFailed, route.Crawler, nil, err.Error())
		r.logger.Error("handler startup failed",
			zap.String("crawler", route.Crawler),
			zap.String("key", string(route.Key)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s: %w", route.Crawler, errors.Join(ErrHandlerFailed, err))
	}
	r.byFamily[route.Crawler] = h
	r.byKey[route.Key] = h
	r.session.Emit(progress.StageHandlerStarted, route.Crawler, nil, "")
	r.logger.Info("handler started", zap.String("crawler", route.Crawler), zap.String("download", route.Download))
	return h, nil
}

func (r *Registry) start(ctx context.Context, route router.Route) (scraper.Handler, error) {
	factory, ok := r.factories[route.Crawler]
	if !ok {
		return nil, ErrUnknownCrawler
	}
	h, err := factory(r.session, route)
	if err != nil {
		return nil, fmt.Errorf("construct: %w", err)
	}
	if err := h.Startup(ctx); err != nil {
		return nil, fmt.Errorf("startup: %w", err)
	}
	if _, err := r.session.Downloads.Register(ctx, route.Download); err != nil {
		return nil, fmt.Errorf("register download %s: %w", route.Download, err)
	}
	go h.RunLoop(ctx)
	return h, nil
}

// Handlers returns every distinct live handler.
func (r *Registry) Handlers() []scraper.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]scraper.Handler, 0, len(r.byFamily))
	for _, family := range sortedKeys(r.byFamily) {
		out = append(out, r.byFamily[family])
	}
	return out
}

// Binding describes one resolved routing key.
type Binding struct {
	Key      scraper.DomainKey `json:"key"`
	Crawler  string            `json:"crawler"`
	Complete bool              `json:"complete"`
	Queued   int               `json:"queued"`
}

// Bindings lists every resolved key with its handler's current state.
func (r *Registry) Bindings() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Binding, 0, len(r.byKey))
	for key, h := range r.byKey {
		out = append(out, Binding{Key: key, Crawler: h.Name(), Complete: h.Complete(), Queued: h.Len()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Failed lists the families whose startup failed.
func (r *Registry) Failed() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.failed)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
