package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dounykim/E-commerce-chatbot-groq/internal/observability/metrics"
)

func TestSetupMetricsExposesChatMetrics(t *testing.T) {
	registry, handler := setupMetrics()
	if registry == nil || handler == nil {
		t.Fatalf("expected non-nil registry and handler")
	}

	m := metrics.NewChatMetrics(registry)
	m.ObserveTurn("completed")
	m.ObserveTrace("sent")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{"shopbot_chat_turns_total", "shopbot_chat_traces_total", "go_goroutines"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s to be exported", name)
		}
	}
}
