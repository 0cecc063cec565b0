package conversation

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
)

// stubLLM answers with a canned reply and records every request. When gate
// is set, Complete signals entered and waits for the gate to open.
type stubLLM struct {
	mu       sync.Mutex
	requests []LLMRequest
	reply    string
	err      error
	entered  chan struct{}
	gate     chan struct{}
}

func (s *stubLLM) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.gate != nil {
		if s.entered != nil {
			s.entered <- struct{}{}
		}
		select {
		case <-s.gate:
		case <-ctx.Done():
			return LLMResponse{}, ctx.Err()
		}
	}
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	return LLMResponse{Text: s.reply}, nil
}

func (s *stubLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubLLM) lastRequest() LLMRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func TestAssembleOrder(t *testing.T) {
	history := []Turn{
		{Role: RoleUser, Text: "hi"},
		{Role: RoleAssistant, Text: "How can I help?"},
		{Role: RoleUser, Text: "Jeans price?"},
	}

	got := Assemble("SYS", "WELCOME", history)
	assert.Equal(t, []ChatMessage{
		{Role: RoleSystem, Content: "SYS"},
		{Role: RoleAssistant, Content: "WELCOME"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "How can I help?"},
		{Role: RoleUser, Content: "Jeans price?"},
	}, got)

	got = Assemble("SYS", "", history[:1])
	assert.Equal(t, []ChatMessage{
		{Role: RoleSystem, Content: "SYS"},
		{Role: RoleUser, Content: "hi"},
	}, got)
}

func TestCompleterReturnsReplyAndPassesSettings(t *testing.T) {
	llm := &stubLLM{reply: "A men's T-shirt costs $20."}
	reg := prometheus.NewRegistry()
	c := NewCompleter(llm, CompleterConfig{Provider: "groq", Model: "gemma2-9b-it", MaxTokens: 512, Temperature: -1}, metrics.NewChatMetrics(reg))

	history := []Turn{{Role: RoleUser, Text: "How much is a T-shirt?"}}
	reply, err := c.Complete(context.Background(), "SYS", "", history)
	require.NoError(t, err)
	assert.Equal(t, "A men's T-shirt costs $20.", reply)

	req := llm.lastRequest()
	assert.Equal(t, "gemma2-9b-it", req.Model)
	assert.Equal(t, int32(512), req.MaxTokens)
	assert.Less(t, req.Temperature, float32(0))
	assert.Len(t, req.Messages, 2)
	assert.Len(t, history, 1, "history must not be modified")
}

func TestCompleterWrapsFailures(t *testing.T) {
	cause := errors.New("429 rate limited")
	tests := []struct {
		name string
		llm  *stubLLM
	}{
		{"provider error", &stubLLM{err: cause}},
		{"empty reply", &stubLLM{reply: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCompleter(tt.llm, CompleterConfig{Provider: "groq", Model: "m"}, nil)
			reply, err := c.Complete(context.Background(), "SYS", "", []Turn{{Role: RoleUser, Text: "hi"}})
			assert.Empty(t, reply)

			var cpe *CompletionProviderError
			require.ErrorAs(t, err, &cpe)
			assert.Equal(t, "groq", cpe.Provider)
			assert.Equal(t, 1, tt.llm.calls(), "no retries")
		})
	}

	c := NewCompleter(&stubLLM{err: cause}, CompleterConfig{Model: "m"}, nil)
	_, err := c.Complete(context.Background(), "SYS", "", nil)
	assert.ErrorIs(t, err, cause)
}

func TestCompleterAppliesTimeout(t *testing.T) {
	llm := &stubLLM{gate: make(chan struct{})}
	c := NewCompleter(llm, CompleterConfig{Model: "m", Timeout: 20 * time.Millisecond}, nil)

	_, err := c.Complete(context.Background(), "SYS", "", []Turn{{Role: RoleUser, Text: "hi"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewCompleterPanicsOnNilClient(t *testing.T) {
	assert.Panics(t, func() { NewCompleter(nil, CompleterConfig{}, nil) })
}
