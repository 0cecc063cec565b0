package tracing

import (
	"context"
	"sync"
	"time"

	"github.com/dounykim/E-commerce-chatbot-groq/internal/observability/metrics"
	"github.com/dounykim/E-commerce-chatbot-groq/pkg/logging"
)

const (
	defaultQueueSize   = 256
	defaultWorkerCount = 1
	defaultSendTimeout = 10 * time.Second
)

type recorderConfig struct {
	queueSize   int
	workers     int
	sendTimeout time.Duration
	metrics     *metrics.ChatMetrics
}

// RecorderOption customizes recorder behavior.
type RecorderOption func(*recorderConfig)

// WithQueueSize sets how many records may wait for delivery before new ones
// are dropped.
func WithQueueSize(size int) RecorderOption {
	return func(cfg *recorderConfig) {
		if size > 0 {
			cfg.queueSize = size
		}
	}
}

// WithWorkers sets the number of delivery goroutines.
func WithWorkers(count int) RecorderOption {
	return func(cfg *recorderConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithSendTimeout bounds each sink call.
func WithSendTimeout(d time.Duration) RecorderOption {
	return func(cfg *recorderConfig) {
		if d > 0 {
			cfg.sendTimeout = d
		}
	}
}

// WithMetrics counts sent, failed and dropped records.
func WithMetrics(m *metrics.ChatMetrics) RecorderOption {
	return func(cfg *recorderConfig) {
		cfg.metrics = m
	}
}

// Recorder hands records to background workers. Record never blocks and
// never reports sink failures to its caller.
type Recorder struct {
	sink    Sink
	logger  *logging.Logger
	cfg     recorderConfig
	records chan Record

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewRecorder starts the delivery workers for sink.
func NewRecorder(sink Sink, logger *logging.Logger, opts ...RecorderOption) *Recorder {
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := recorderConfig{
		queueSize:   defaultQueueSize,
		workers:     defaultWorkerCount,
		sendTimeout: defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Recorder{
		sink:    sink,
		logger:  logger,
		cfg:     cfg,
		records: make(chan Record, cfg.queueSize),
	}
	for i := 0; i < cfg.workers; i++ {
		r.wg.Add(1)
		go r.run(i + 1)
	}
	return r
}

// Record queues rec for delivery. It returns false when the record was
// dropped because the queue is full or the recorder is closed.
func (r *Recorder) Record(rec Record) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(rec, "closed")
		return false
	}
	select {
	case r.records <- rec:
		return true
	default:
		r.drop(rec, "queue_full")
		return false
	}
}

func (r *Recorder) drop(rec Record, reason string) {
	r.cfg.metrics.ObserveTrace("dropped")
	r.logger.Warn("tracing: record dropped", "trace_id", rec.ID, "reason", reason, "sink", r.sink.Name())
}

// Close stops accepting records and waits for queued ones to be delivered
// or for ctx to end.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.records)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run(workerID int) {
	defer r.wg.Done()
	r.logger.Debug("tracing worker started", "worker_id", workerID, "sink", r.sink.Name())
	for rec := range r.records {
		r.deliver(rec)
	}
	r.logger.Debug("tracing worker stopped", "worker_id", workerID)
}

func (r *Recorder) deliver(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.sendTimeout)
	defer cancel()

	if err := r.sink.Send(ctx, rec); err != nil {
		sinkErr := &TraceSinkError{Sink: r.sink.Name(), Cause: err}
		r.cfg.metrics.ObserveTrace("failed")
		r.logger.Warn("tracing: delivery failed", "trace_id", rec.ID, "error", sinkErr)
		return
	}
	r.cfg.metrics.ObserveTrace("sent")
}
