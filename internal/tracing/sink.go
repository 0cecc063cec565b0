package tracing

import (
	"context"
	"fmt"

	"github.com/dounykim/E-commerce-chatbot-groq/pkg/logging"
)

// Sink delivers a record to a backend.
type Sink interface {
	Name() string
	Send(ctx context.Context, rec Record) error
}

// TraceSinkError wraps a delivery failure. It is logged and counted by the
// Recorder and never reaches chat callers.
type TraceSinkError struct {
	Sink  string
	Cause error
}

func (e *TraceSinkError) Error() string {
	return fmt.Sprintf("tracing: %s sink failed: %v", e.Sink, e.Cause)
}

func (e *TraceSinkError) Unwrap() error {
	return e.Cause
}

// NopSink discards records.
type NopSink struct{}

func (NopSink) Name() string { return "none" }

func (NopSink) Send(context.Context, Record) error { return nil }

// LogSink writes records to the structured log.
type LogSink struct {
	logger *logging.Logger
}

func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(ctx context.Context, rec Record) error {
	s.logger.InfoContext(ctx, "tracing: chat turn",
		"trace_id", rec.ID,
		"name", rec.Name,
		"span", rec.Span.Name,
		"input", rec.Input,
		"output", rec.Output,
		"context", rec.Span.Input["context"],
		"metadata", rec.Metadata,
	)
	return nil
}
