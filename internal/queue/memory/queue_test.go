package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue[string]()
	result := make(chan string, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	require.NoError(t, q.Enqueue(context.Background(), "job-1"))

	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, "job-1", got)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return item")
	}
}

func TestQueueIsFIFOAndUnbounded(t *testing.T) {
	t.Parallel()

	q := NewQueue[int]()
	for i := 0; i < 1000; i++ {
		require.NoError(t, q.Enqueue(context.Background(), i))
	}
	require.Equal(t, 1000, q.Len())

	for i := 0; i < 1000; i++ {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		require.Equal(t, i, got)
	}
	_, ok := q.TryDequeue()
	require.False(t, ok)
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	q := NewQueue[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx)
	require.EqualError(t, err, "dequeue canceled: context canceled")

	err = q.Enqueue(ctx, 1)
	require.EqualError(t, err, "enqueue canceled: context canceled")
}

func TestQueueCloseDrainsThenErrors(t *testing.T) {
	t.Parallel()

	q := NewQueue[string]()
	require.NoError(t, q.Enqueue(context.Background(), "left"))
	q.Close()
	// Closing twice should be safe.
	q.Close()

	require.ErrorIs(t, q.Enqueue(context.Background(), "late"), ErrClosed)

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "left", got)

	_, err = q.Dequeue(context.Background())
	require.True(t, errors.Is(err, ErrClosed))
}

func TestQueueCloseWakesWaiter(t *testing.T) {
	t.Parallel()

	q := NewQueue[string]()
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by Close")
	}
}

func TestQueueReadySignalsEnqueue(t *testing.T) {
	t.Parallel()

	q := NewQueue[int]()
	require.NoError(t, q.Enqueue(context.Background(), 7))

	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		t.Fatal("ready did not fire")
	}
}
