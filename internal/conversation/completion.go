package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dounykim/E-commerce-chatbot-groq/internal/observability/metrics"
)

var completionTracer = otel.Tracer("shopbot.internal.conversation.completion")

const defaultCompletionTimeout = 30 * time.Second

// CompleterConfig tunes provider calls.
type CompleterConfig struct {
	Provider    string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64 // negative omits the parameter
}

// Completer turns a prefix and history into exactly one provider call.
type Completer struct {
	client  LLMClient
	cfg     CompleterConfig
	metrics *metrics.ChatMetrics
}

func NewCompleter(client LLMClient, cfg CompleterConfig, m *metrics.ChatMetrics) *Completer {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCompletionTimeout
	}
	return &Completer{client: client, cfg: cfg, metrics: m}
}

// Assemble builds the request sequence: system instruction, then the greeting
// when it is kept outside history, then every history turn in order.
func Assemble(systemInstruction, greeting string, history []Turn) []ChatMessage {
	messages := make([]ChatMessage, 0, len(history)+2)
	messages = append(messages, ChatMessage{Role: RoleSystem, Content: systemInstruction})
	if greeting != "" {
		messages = append(messages, ChatMessage{Role: RoleAssistant, Content: greeting})
	}
	for _, turn := range history {
		messages = append(messages, ChatMessage{Role: turn.Role, Content: turn.Text})
	}
	return messages
}

// Complete sends one request and returns the top choice text. Every failure
// is a *CompletionProviderError; nothing is retried and history is not
// modified.
func (c *Completer) Complete(ctx context.Context, systemInstruction, greeting string, history []Turn) (string, error) {
	ctx, span := completionTracer.Start(ctx, "conversation.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("shopbot.provider", c.cfg.Provider),
		attribute.Int("shopbot.history_len", len(history)),
	)

	req := LLMRequest{
		Model:       c.cfg.Model,
		Messages:    Assemble(systemInstruction, greeting, history),
		MaxTokens:   int32(c.cfg.MaxTokens),
		Temperature: float32(c.cfg.Temperature),
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Complete(callCtx, req)
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = errors.New("provider returned an empty reply")
	}
	elapsed := time.Since(start).Seconds()
	if err != nil {
		span.RecordError(err)
		c.metrics.ObserveCompletion(c.cfg.Provider, "error", elapsed)
		return "", &CompletionProviderError{Provider: c.cfg.Provider, Cause: err}
	}
	c.metrics.ObserveCompletion(c.cfg.Provider, "ok", elapsed)
	return resp.Text, nil
}
