// Package handler provides the run loop shared by every domain handler and a
// generic colly-based page handler configured per family.
package handler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkmapper/internal/queue/memory"
	"github.com/JakeFAU/linkmapper/internal/scraper"
)

// ProcessFunc handles one work item taken from the handler queue.
type ProcessFunc func(ctx context.Context, item scraper.WorkItem) error

// Base implements scraper.Handler around a ProcessFunc.
//
// Every item on the queue is counted by the session tracker. The item is
// finished only after process returns and busy is cleared, so children
// submitted during processing are always counted before their parent ends.
type Base struct {
	name    string
	session *scraper.Session
	queue   *memory.Queue[scraper.WorkItem]
	busy    atomic.Bool
	process ProcessFunc
	startup func(ctx context.Context) error
	logger  *zap.Logger

	processed atomic.Int64
	failed    atomic.Int64
}

// NewBase builds a Base. startup may be nil.
func NewBase(name string, session *scraper.Session, process ProcessFunc, startup func(context.Context) error) *Base {
	logger := zap.NewNop()
	if session != nil && session.Logger != nil {
		logger = session.Logger.Named(name)
	}
	return &Base{
		name:    name,
		session: session,
		queue:   memory.NewQueue[scraper.WorkItem](),
		process: process,
		startup: startup,
		logger:  logger,
	}
}

// Name implements scraper.Handler.
func (b *Base) Name() string { return b.name }

// Startup implements scraper.Handler.
func (b *Base) Startup(ctx context.Context) error {
	if b.startup != nil {
		if err := b.startup(ctx); err != nil {
			return err
		}
	}
	if b.process == nil {
		return errors.New("handler has no process function")
	}
	return nil
}

// Enqueue accepts an item already counted by the tracker, typically one the
// dispatcher took off the intake queue.
func (b *Base) Enqueue(ctx context.Context, item scraper.WorkItem) error {
	if err := b.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("%s enqueue: %w", b.name, err)
	}
	return nil
}

// Requeue adds a new item discovered by this handler to its own queue.
func (b *Base) Requeue(ctx context.Context, item scraper.WorkItem) error {
	b.session.Tracker.Add(1)
	if err := b.queue.Enqueue(ctx, item); err != nil {
		b.session.Finish()
		return fmt.Errorf("%s requeue: %w", b.name, err)
	}
	return nil
}

// Len implements scraper.Handler.
func (b *Base) Len() int { return b.queue.Len() }

// Complete reports whether nothing is queued or being processed.
func (b *Base) Complete() bool {
	return !b.busy.Load() && b.queue.Len() == 0
}

// Stats returns processed and failed item counts.
func (b *Base) Stats() (processed, failed int64) {
	return b.processed.Load(), b.failed.Load()
}

// RunLoop processes items until ctx ends or the queue is closed.
func (b *Base) RunLoop(ctx context.Context) {
	for {
		item, err := b.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, memory.ErrClosed) && !errors.Is(err, context.Canceled) {
				b.logger.Warn("handler loop stopped", zap.Error(err))
			}
			return
		}
		b.handle(ctx, item)
	}
}

func (b *Base) handle(ctx context.Context, item scraper.WorkItem) {
	b.busy.Store(true)
	defer func() {
		b.busy.Store(false)
		b.session.Finish()
	}()
	defer func() {
		if r := recover(); r != nil {
			b.failed.Add(1)
			b.logger.Error("handler panic", zap.String("url", item.URL.String()), zap.Any("panic", r))
		}
	}()

	if err := b.process(ctx, item); err != nil {
		b.failed.Add(1)
		b.logger.Warn("scrape failed", zap.String("url", item.URL.String()), zap.Error(err))
		return
	}
	b.processed.Add(1)
}
