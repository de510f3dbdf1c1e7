package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkmapper/internal/progress"
)

// LogSink writes every event as a debug-level structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Debug("progress event",
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.String("domain", evt.Domain),
			zap.String("url", evt.URL),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close flushes the logger. Sync errors on console outputs are ignored.
func (s *LogSink) Close(context.Context) error {
	_ = s.logger.Sync() //nolint:errcheck // best-effort flush
	return nil
}
