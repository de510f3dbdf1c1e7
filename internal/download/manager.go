// Package download owns the download capability table: one queue per
// capability name, each optionally drained by an Executor.
package download

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkmapper/internal/queue/memory"
	"github.com/JakeFAU/linkmapper/internal/scraper"
)

// Executor performs the transfer of a single media item.
type Executor interface {
	Execute(ctx context.Context, capability string, item scraper.MediaItem) error
}

// Manager hands out per-capability queues and runs their consumers.
type Manager struct {
	mu       sync.Mutex
	queues   map[string]*memory.Queue[scraper.MediaItem]
	executor Executor
	logger   *zap.Logger
	wg       sync.WaitGroup
	closed   bool
	counts   map[string]int
}

// NewManager builds a Manager. A nil executor leaves items queued for the
// caller to inspect.
func NewManager(executor Executor, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		queues:   make(map[string]*memory.Queue[scraper.MediaItem]),
		executor: executor,
		logger:   logger,
		counts:   make(map[string]int),
	}
}

// Register returns the queue for name, creating it and starting its consumer
// on first use. Registering an existing name is a no-op.
func (m *Manager) Register(ctx context.Context, name string) (scraper.Queue[scraper.MediaItem], error) {
	if name == "" {
		return nil, errors.New("download capability name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[name]; ok {
		return q, nil
	}
	if m.closed {
		return nil, fmt.Errorf("register %s: %w", name, memory.ErrClosed)
	}
	q := memory.NewQueue[scraper.MediaItem]()
	m.queues[name] = q
	m.logger.Debug("download capability registered", zap.String("capability", name))
	if m.executor != nil {
		m.wg.Add(1)
		go m.consume(context.WithoutCancel(ctx), name, q)
	}
	return q, nil
}

// Queue returns the queue for a registered capability.
func (m *Manager) Queue(name string) (*memory.Queue[scraper.MediaItem], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[name]
	return q, ok
}

// Capabilities lists registered capability names in sorted order.
func (m *Manager) Capabilities() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.queues))
	for name := range m.queues {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Executed returns how many items each capability's executor has processed.
func (m *Manager) Executed() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}

// Close stops accepting items and waits for consumers to drain their queues
// or for ctx to end.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, q := range m.queues {
		q.Close()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("download drain wait: %w", ctx.Err())
	}
}

func (m *Manager) consume(ctx context.Context, name string, q *memory.Queue[scraper.MediaItem]) {
	defer m.wg.Done()
	logger := m.logger.With(zap.String("capability", name))
	for {
		item, err := q.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, memory.ErrClosed) {
				logger.Warn("download consumer stopped", zap.Error(err))
			}
			return
		}
		if err := m.executor.Execute(ctx, name, item); err != nil {
			logger.Error("download failed", zap.String("url", urlString(item.URL)), zap.Error(err))
			continue
		}
		m.mu.Lock()
		m.counts[name]++
		m.mu.Unlock()
	}
}
