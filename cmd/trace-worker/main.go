package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dounykim/E-commerce-chatbot-groq/cmd/mainconfig"
	appconfig "github.com/dounykim/E-commerce-chatbot-groq/internal/config"
	"github.com/dounykim/E-commerce-chatbot-groq/internal/observability/metrics"
	"github.com/dounykim/E-commerce-chatbot-groq/internal/tracing"
	"github.com/dounykim/E-commerce-chatbot-groq/pkg/logging"
)

// trace-worker drains the trace queue filled by TRACE_SINK=sqs into Opik.
func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if strings.TrimSpace(cfg.TraceQueueURL) == "" {
		logger.Error("invalid configuration", "error", &appconfig.ConfigurationError{Field: "TRACE_QUEUE_URL", Reason: "required by the trace worker"})
		os.Exit(1)
	}
	sink, err := mainconfig.NewOpikSink(cfg)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	awsConfig, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	queue := tracing.NewSQSQueue(sqs.NewFromConfig(awsConfig), cfg.TraceQueueURL)
	forwarder := tracing.NewForwarder(
		queue,
		sink,
		logger,
		tracing.WithForwarderWorkers(cfg.TraceWorkers),
		tracing.WithForwarderMetrics(metrics.NewChatMetrics(registry)),
	)

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("trace worker started", "queue_url", cfg.TraceQueueURL, "workers", cfg.TraceWorkers)
	forwarder.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down trace worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()
	_ = metricsSrv.Shutdown(doneCtx)

	waitCh := make(chan struct{})
	go func() {
		forwarder.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("trace worker stopped")
	case <-doneCtx.Done():
		logger.Error("trace worker shutdown timed out", "error", doneCtx.Err())
	}
}
