// Package memory provides unbounded in-process queues shared by the dispatcher,
// handlers and download executors.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned once a closed queue has been fully drained.
var ErrClosed = errors.New("queue closed")

// Queue is an unbounded FIFO queue with context-aware operations.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	ready  chan struct{}
	done   chan struct{}
	closed bool
}

// NewQueue constructs an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Enqueue appends an item. It never blocks on capacity.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signal()
	return nil
}

// TryDequeue pops the head item without waiting.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Dequeue pops the next item, waiting until one is available, the queue is
// closed and drained, or the context ends.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	for {
		if item, ok := q.TryDequeue(); ok {
			return item, nil
		}
		if q.isClosed() {
			return zero, ErrClosed
		}
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("dequeue canceled: %w", ctx.Err())
		case <-q.ready:
		case <-q.done:
		}
	}
}

// Ready fires after an Enqueue. Consumers must re-check with TryDequeue.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Len reports the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further items. Items already queued can still be dequeued.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Queue[T]) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
