package main

import (
	"context"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/dounykim/E-commerce-chatbot-groq/cmd/mainconfig"
	appconfig "github.com/dounykim/E-commerce-chatbot-groq/internal/config"
	"github.com/dounykim/E-commerce-chatbot-groq/internal/tracing"
	"github.com/dounykim/E-commerce-chatbot-groq/pkg/logging"
)

// trace-lambda is the SQS event source variant of trace-worker.
func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	sink, err := mainconfig.NewOpikSink(cfg)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	relay := tracing.NewRelay(sink, logger)

	lambda.Start(func(ctx context.Context, evt events.SQSEvent) error {
		return handle(ctx, relay, logger, evt)
	})
}

type forwarder interface {
	Forward(ctx context.Context, messageID, body string) error
}

// handle forwards every record in the batch once. It never returns an error
// so SQS does not redeliver; failed records are dropped traces.
func handle(ctx context.Context, relay forwarder, logger *logging.Logger, evt events.SQSEvent) error {
	failed := 0
	for _, msg := range evt.Records {
		if strings.TrimSpace(msg.Body) == "" {
			continue
		}
		if err := relay.Forward(ctx, msg.MessageId, msg.Body); err != nil {
			failed++
		}
	}
	if failed > 0 {
		logger.Warn("tracing: batch had undelivered records", "failed", failed, "batch_size", len(evt.Records))
	}
	return nil
}
