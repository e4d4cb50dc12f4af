// Package sinks contains the built-in status sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/cna-research/geoharvest/internal/status"
)

// LogSink renders status events as structured logs. This is the stdout
// replacement for the original desktop log window.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs one event with structured fields.
func (s *LogSink) Consume(_ context.Context, evt status.Event) error {
	fields := []zap.Field{
		zap.String("run_id", evt.RunID.String()),
		zap.String("stage", string(evt.Stage)),
	}
	if evt.Page > 0 {
		fields = append(fields, zap.Int("page", evt.Page), zap.Int("total_pages", evt.TotalPages))
	}
	if evt.Artifact != "" {
		fields = append(fields, zap.String("artifact", evt.Artifact), zap.String("outcome", evt.Outcome))
	}
	if evt.Strategy != "" {
		fields = append(fields, zap.String("strategy", evt.Strategy))
	}
	if evt.Note != "" {
		fields = append(fields, zap.String("note", evt.Note))
	}
	s.logger.Info("crawl status", fields...)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
