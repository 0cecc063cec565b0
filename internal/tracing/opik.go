package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOpikBaseURL = "https://www.comet.com/opik/api"

// OpikConfig describes how to reach the Opik REST API.
type OpikConfig struct {
	BaseURL   string
	APIKey    string
	Workspace string
	Project   string
	Timeout   time.Duration
}

// OpikSink creates one trace and its llm span per record.
type OpikSink struct {
	baseURL   string
	apiKey    string
	workspace string
	project   string
	http      *http.Client
}

// NewOpikSink validates the configuration and returns a ready-to-use sink.
func NewOpikSink(cfg OpikConfig) (*OpikSink, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("tracing: opik api key required")
	}
	if strings.TrimSpace(cfg.Workspace) == "" {
		return nil, errors.New("tracing: opik workspace required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpikBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OpikSink{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    cfg.APIKey,
		workspace: cfg.Workspace,
		project:   cfg.Project,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

func (s *OpikSink) Name() string { return "opik" }

type opikTrace struct {
	ID          string            `json:"id"`
	ProjectName string            `json:"project_name,omitempty"`
	Name        string            `json:"name"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     time.Time         `json:"end_time"`
	Input       map[string]any    `json:"input"`
	Output      map[string]any    `json:"output"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type opikSpan struct {
	ID          string         `json:"id"`
	TraceID     string         `json:"trace_id"`
	ProjectName string         `json:"project_name,omitempty"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time"`
	Input       map[string]any `json:"input"`
	Output      map[string]any `json:"output"`
}

// Send posts the trace, then the span that references it.
func (s *OpikSink) Send(ctx context.Context, rec Record) error {
	trace := opikTrace{
		ID:          rec.ID,
		ProjectName: s.project,
		Name:        rec.Name,
		StartTime:   rec.StartTime,
		EndTime:     rec.EndTime,
		Input:       rec.Input,
		Output:      rec.Output,
		Metadata:    rec.Metadata,
	}
	if err := s.post(ctx, "/v1/private/traces", trace); err != nil {
		return err
	}

	span := opikSpan{
		ID:          rec.Span.ID,
		TraceID:     rec.ID,
		ProjectName: s.project,
		Name:        rec.Span.Name,
		Type:        rec.Span.Type,
		StartTime:   rec.StartTime,
		EndTime:     rec.EndTime,
		Input:       rec.Span.Input,
		Output:      rec.Span.Output,
	}
	return s.post(ctx, "/v1/private/spans", span)
}

func (s *OpikSink) post(ctx context.Context, path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("tracing: failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("tracing: request build failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", s.apiKey)
	req.Header.Set("Comet-Workspace", s.workspace)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("tracing: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("tracing: %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
