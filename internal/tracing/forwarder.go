package tracing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dounykim/E-commerce-chatbot-groq/internal/observability/metrics"
	"github.com/dounykim/E-commerce-chatbot-groq/pkg/logging"
)

// QueueSink publishes records to a Queue for an out-of-process Forwarder.
type QueueSink struct {
	queue Queue
}

func NewQueueSink(queue Queue) *QueueSink {
	if queue == nil {
		panic("tracing: queue cannot be nil")
	}
	return &QueueSink{queue: queue}
}

func (s *QueueSink) Name() string { return "sqs" }

func (s *QueueSink) Send(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("tracing: failed to encode record: %w", err)
	}
	return s.queue.Send(ctx, string(body))
}

const (
	defaultForwarderWorkers = 1
	defaultWaitSeconds      = 10
	defaultBatchSize        = 5
	maxWaitSeconds          = 20
	maxReceiveBatchSize     = 10
	deleteTimeout           = 5 * time.Second
)

type forwarderConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	sendTimeout      time.Duration
	metrics          *metrics.ChatMetrics
}

// ForwarderOption customizes forwarder behavior.
type ForwarderOption func(*forwarderConfig)

// WithForwarderWorkers sets the number of concurrent consumer goroutines.
func WithForwarderWorkers(count int) ForwarderOption {
	return func(cfg *forwarderConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) ForwarderOption {
	return func(cfg *forwarderConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) ForwarderOption {
	return func(cfg *forwarderConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithForwarderMetrics counts forwarded and failed records.
func WithForwarderMetrics(m *metrics.ChatMetrics) ForwarderOption {
	return func(cfg *forwarderConfig) {
		cfg.metrics = m
	}
}

// Relay decodes queued records and delivers each one to a Sink exactly once.
type Relay struct {
	sink    Sink
	logger  *logging.Logger
	timeout time.Duration
	metrics *metrics.ChatMetrics
}

func newForwarderConfig(opts []ForwarderOption) forwarderConfig {
	cfg := forwarderConfig{
		workers:          defaultForwarderWorkers,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		sendTimeout:      defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRelay builds a Relay; only WithForwarderMetrics applies to it.
func NewRelay(sink Sink, logger *logging.Logger, opts ...ForwarderOption) *Relay {
	if sink == nil {
		panic("tracing: sink cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := newForwarderConfig(opts)
	return &Relay{sink: sink, logger: logger, timeout: cfg.sendTimeout, metrics: cfg.metrics}
}

// Forward decodes body and sends the record. Failures are counted, logged and
// returned; callers must not retry.
func (r *Relay) Forward(ctx context.Context, messageID, body string) error {
	var rec Record
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		r.logger.Error("failed to decode trace record", "error", err, "message_id", messageID)
		r.metrics.ObserveTrace("failed")
		return fmt.Errorf("tracing: failed to decode record: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.sink.Send(sendCtx, rec); err != nil {
		sinkErr := &TraceSinkError{Sink: r.sink.Name(), Cause: err}
		r.logger.Warn("tracing: forward failed", "trace_id", rec.ID, "error", sinkErr)
		r.metrics.ObserveTrace("failed")
		return sinkErr
	}
	r.metrics.ObserveTrace("sent")
	return nil
}

// Forwarder drains a Queue into a Sink. Each message is attempted once and
// deleted afterwards; a failed delivery is a dropped trace.
type Forwarder struct {
	queue  Queue
	relay  *Relay
	logger *logging.Logger
	cfg    forwarderConfig
	wg     sync.WaitGroup
}

func NewForwarder(queue Queue, sink Sink, logger *logging.Logger, opts ...ForwarderOption) *Forwarder {
	if queue == nil {
		panic("tracing: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Forwarder{
		queue:  queue,
		relay:  NewRelay(sink, logger, opts...),
		logger: logger,
		cfg:    newForwarderConfig(opts),
	}
}

// Start launches the consumer goroutines; they stop when ctx is cancelled.
func (f *Forwarder) Start(ctx context.Context) {
	for i := 0; i < f.cfg.workers; i++ {
		f.wg.Add(1)
		go f.run(ctx, i+1)
	}
}

// Wait blocks until every consumer has returned.
func (f *Forwarder) Wait() {
	f.wg.Wait()
}

func (f *Forwarder) run(ctx context.Context, workerID int) {
	defer f.wg.Done()
	f.logger.Debug("trace forwarder started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			f.logger.Debug("trace forwarder stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := f.queue.Receive(ctx, f.cfg.receiveBatchSize, f.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			f.logger.Error("failed to receive trace records", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			f.handleMessage(ctx, msg)
		}
	}
}

func (f *Forwarder) handleMessage(ctx context.Context, msg QueueMessage) {
	defer f.deleteMessage(ctx, msg.ReceiptHandle)
	_ = f.relay.Forward(ctx, msg.ID, msg.Body)
}

func (f *Forwarder) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
	defer cancel()
	if err := f.queue.Delete(deleteCtx, receiptHandle); err != nil {
		f.logger.Error("failed to delete trace record", "error", err)
	}
}
