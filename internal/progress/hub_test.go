package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestHubBatchBySize verifies the hub flushes once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		FlushInterval:  time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageSkipped))
	hub.Emit(sampleEvent(StageSkipped))
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubFlushByInterval verifies partial batches are flushed by the ticker.
func TestHubFlushByInterval(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		FlushInterval:  20 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageUnsupported))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubEmitNonBlockingWithoutConsumers asserts Emit never blocks callers.
func TestHubEmitNonBlockingWithoutConsumers(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	hub := &Hub{
		events: make(chan Event),
		logger: zap.New(core),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageSkipped))
	hub.Emit(sampleEvent(StageSkipped))
	require.Less(t, time.Since(start), 50*time.Millisecond)

	// The first drop is logged and resets the counter; the second waits for
	// the next log interval.
	warnings := logs.FilterMessage("progress events dropped due to backpressure").All()
	require.Len(t, warnings, 1)
	require.EqualValues(t, 1, warnings[0].ContextMap()["dropped"])
	require.EqualValues(t, 1, hub.dropped.Load())
}

// TestHubDiscardsInvalidEvents checks that malformed events never reach sinks.
func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1}, sink)

	hub.Emit(Event{Stage: StageSkipped})
	evt := sampleEvent(StageRouted)
	evt.Domain = ""
	hub.Emit(evt)

	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
	require.True(t, sink.closed)
}

// TestHubFlushOnClose ensures Close drains buffered events before returning.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		FlushInterval:  time.Minute,
	}, sink)

	hub.Emit(sampleEvent(StageDrained))

	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)

	hub.Emit(sampleEvent(StageDrained))
	require.Len(t, sink.Batches(), 1)
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(sampleEvent(StageSkipped))
	require.NoError(t, hub.Close(context.Background()))
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func sampleEvent(stage Stage) Event {
	return Event{
		RunID:  UUIDToBytes(uuid.New()),
		TS:     time.Now(),
		Stage:  stage,
		Domain: "bunkr",
		URL:    "https://bunkr.example/a/1",
	}
}
