package webchat

import (
	"errors"
	"net/http"
	"time"

	"github.com/dounykim/E-commerce-chatbot-groq/internal/conversation"
)

const providerFailureText = "Sorry, something went wrong. Please try again."

// HistoryMessage is one rendered turn.
type HistoryMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

func historyMessages(turns []conversation.Turn) []HistoryMessage {
	out := make([]HistoryMessage, 0, len(turns))
	for _, turn := range turns {
		out = append(out, HistoryMessage{
			ID:        string(turn.ID),
			Role:      string(turn.Role),
			Text:      turn.Text,
			Timestamp: turn.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

// errorStatus maps conversation errors to an HTTP status and the text shown
// to the customer.
func errorStatus(err error) (int, string) {
	var providerErr *conversation.CompletionProviderError
	switch {
	case errors.Is(err, conversation.ErrEmptyInput):
		return http.StatusBadRequest, "message text is required"
	case errors.Is(err, conversation.ErrSessionBusy):
		return http.StatusConflict, "a reply is still being prepared"
	case errors.Is(err, conversation.ErrSessionNotFound):
		return http.StatusNotFound, "session not found"
	case errors.As(err, &providerErr):
		return http.StatusBadGateway, providerFailureText
	default:
		return http.StatusInternalServerError, providerFailureText
	}
}
