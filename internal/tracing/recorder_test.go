package tracing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dounykim/E-commerce-chatbot-groq/internal/observability/metrics"
	"github.com/dounykim/E-commerce-chatbot-groq/pkg/logging"
)

// captureSink records delivered traces; it can be told to fail or to block.
type captureSink struct {
	mu      sync.Mutex
	records []Record
	err     error
	gate    chan struct{}
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Send(ctx context.Context, rec Record) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func sampleRecord(input string) Record {
	return NewChatRecord(input, "reply to "+input, []Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: input},
	}, time.Now(), map[string]string{"session_id": "sess-1"})
}

func TestRecorderDeliversRecords(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(sink, logging.New("error"), WithWorkers(2))

	require.True(t, r.Record(sampleRecord("a")))
	require.True(t, r.Record(sampleRecord("b")))
	require.NoError(t, r.Close(context.Background()))

	assert.Equal(t, 2, sink.count())
}

func TestRecorderSwallowsSinkFailures(t *testing.T) {
	sink := &captureSink{err: errors.New("opik unavailable")}
	m := metrics.NewChatMetrics(prometheus.NewRegistry())
	r := NewRecorder(sink, logging.New("error"), WithMetrics(m))

	assert.True(t, r.Record(sampleRecord("a")))
	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, 0, sink.count())
}

func TestRecorderDropsWhenQueueFull(t *testing.T) {
	sink := &captureSink{gate: make(chan struct{})}
	r := NewRecorder(sink, logging.New("error"), WithQueueSize(1), WithWorkers(1))

	// First record is picked up by the worker and parks on the gate; the
	// second fills the buffer; the third has nowhere to go.
	require.True(t, r.Record(sampleRecord("a")))
	require.Eventually(t, func() bool { return len(r.records) == 0 }, time.Second, 5*time.Millisecond)
	require.True(t, r.Record(sampleRecord("b")))
	assert.False(t, r.Record(sampleRecord("c")))

	close(sink.gate)
	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, 2, sink.count())
}

func TestRecorderRejectsAfterClose(t *testing.T) {
	r := NewRecorder(&captureSink{}, logging.New("error"))
	require.NoError(t, r.Close(context.Background()))
	require.NoError(t, r.Close(context.Background()))
	assert.False(t, r.Record(sampleRecord("late")))
}

func TestRecorderCloseHonoursContext(t *testing.T) {
	sink := &captureSink{gate: make(chan struct{})}
	r := NewRecorder(sink, logging.New("error"), WithSendTimeout(time.Minute))
	require.True(t, r.Record(sampleRecord("stuck")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Close(ctx), context.DeadlineExceeded)
	close(sink.gate)
}

func TestNewChatRecordShape(t *testing.T) {
	ctxMsgs := []Message{{Role: "system", Content: "catalog"}, {Role: "user", Content: "hi"}}
	rec := NewChatRecord("hi", "How can I help?", ctxMsgs, time.Time{}, nil)

	assert.Equal(t, "chat", rec.Name)
	assert.Equal(t, map[string]any{"user_input": "hi"}, rec.Input)
	assert.Equal(t, map[string]any{"response": "How can I help?"}, rec.Output)
	assert.Equal(t, "llm_call", rec.Span.Name)
	assert.Equal(t, "llm", rec.Span.Type)
	assert.Equal(t, ctxMsgs, rec.Span.Input["context"])
	assert.NotEmpty(t, rec.ID)
	assert.NotEqual(t, rec.ID, rec.Span.ID)
	assert.False(t, rec.StartTime.After(rec.EndTime))
}

func TestTraceSinkErrorUnwrap(t *testing.T) {
	cause := errors.New("timeout")
	err := &TraceSinkError{Sink: "opik", Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "tracing: opik sink failed: timeout", err.Error())
}

func TestLogSinkNeverFails(t *testing.T) {
	assert.NoError(t, NewLogSink(logging.New("error")).Send(context.Background(), sampleRecord("x")))
	assert.NoError(t, NopSink{}.Send(context.Background(), sampleRecord("x")))
}
