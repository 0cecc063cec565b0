// Package tracing ships one record per completed chat turn to an
// observability backend without touching the reply path.
package tracing

import (
	"time"

	"github.com/google/uuid"
)

// Message is one entry of the context sent to the completion provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Span is the nested child record describing the model call.
type Span struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Input  map[string]any `json:"input"`
	Output map[string]any `json:"output"`
}

// Record is a trace of one completed turn.
type Record struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Input     map[string]any    `json:"input"`
	Output    map[string]any    `json:"output"`
	Span      Span              `json:"span"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`
}

// NewChatRecord builds the "chat" trace with its "llm_call" span. context is
// the full message sequence used for the completion.
func NewChatRecord(input, output string, context []Message, started time.Time, metadata map[string]string) Record {
	ended := time.Now().UTC()
	if started.IsZero() {
		started = ended
	}
	return Record{
		ID:     newID(),
		Name:   "chat",
		Input:  map[string]any{"user_input": input},
		Output: map[string]any{"response": output},
		Span: Span{
			ID:     newID(),
			Name:   "llm_call",
			Type:   "llm",
			Input:  map[string]any{"context": context},
			Output: map[string]any{"response": output},
		},
		Metadata:  metadata,
		StartTime: started.UTC(),
		EndTime:   ended,
	}
}

// newID returns a time-ordered UUIDv7, which Opik requires for trace ids.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
