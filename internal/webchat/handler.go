package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/dounykim/E-commerce-chatbot-groq/internal/conversation"
	"github.com/dounykim/E-commerce-chatbot-groq/pkg/logging"
)

// maxMessageBytes bounds one HTTP request body or WebSocket frame.
const maxMessageBytes = 64 << 10

// Sessions is the session lifecycle the handler drives.
type Sessions interface {
	Create(ctx context.Context) (*conversation.Session, error)
	Get(ctx context.Context, id string) (*conversation.Session, error)
	Reset(ctx context.Context, id string) (*conversation.Session, error)
	Destroy(ctx context.Context, id string) error
}

// Handler serves the chat widget over WebSocket and plain HTTP.
type Handler struct {
	sessions Sessions
	logger   *logging.Logger
	widgetJS []byte
	index    []byte
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type string `json:"type"` // "message", "reset", "ping"
	Text string `json:"text"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type      string           `json:"type"` // "session", "history", "typing", "message", "busy", "error", "pong"
	Text      string           `json:"text,omitempty"`
	Role      string           `json:"role,omitempty"`
	TurnID    string           `json:"turn_id,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	Timestamp string           `json:"timestamp,omitempty"`
	Messages  []HistoryMessage `json:"messages,omitempty"`
}

// NewHandler creates a web chat handler serving the embedded widget.
func NewHandler(sessions Sessions, logger *logging.Logger) *Handler {
	if sessions == nil {
		panic("webchat: sessions cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		sessions: sessions,
		logger:   logger,
		widgetJS: widgetJS,
		index:    indexHTML,
	}
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	ctx := r.Context()
	// Clear server read/write timeouts inherited from the hijacked conn.
	_ = conn.SetDeadline(time.Time{})
	conn.MaxPayloadBytes = maxMessageBytes
	session, err := h.openSession(ctx, r.URL.Query().Get("session"))
	if err != nil {
		h.logger.Error("webchat: failed to open session", "error", err)
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: providerFailureText})
		return
	}
	logger := h.logger.ForSession(session.ID())

	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", SessionID: session.ID()})
	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "history", Messages: historyMessages(session.Snapshot())})
	logger.Info("webchat: connection opened")

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			logger.Debug("webchat: connection closed", "error", err)
			return
		}

		switch msg.Type {
		case "ping":
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
		case "reset":
			if err := session.Reset(ctx); err != nil {
				h.sendError(conn, err)
				continue
			}
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "history", Messages: historyMessages(session.Snapshot())})
		case "message":
			h.processMessage(ctx, conn, session, msg.Text)
		}
	}
}

// openSession resumes id when it is still live and starts a new session
// otherwise.
func (h *Handler) openSession(ctx context.Context, id string) (*conversation.Session, error) {
	if id != "" {
		session, err := h.sessions.Get(ctx, id)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, conversation.ErrSessionNotFound) {
			return nil, err
		}
	}
	return h.sessions.Create(ctx)
}

func (h *Handler) processMessage(ctx context.Context, conn *websocket.Conn, session *conversation.Session, text string) {
	if strings.TrimSpace(text) == "" {
		h.sendError(conn, conversation.ErrEmptyInput)
		return
	}
	if session.Busy() {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "busy"})
		return
	}
	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "typing"})

	reply, err := session.Send(ctx, text)
	if err != nil {
		h.sendError(conn, err)
		return
	}
	_ = websocket.JSON.Send(conn, OutboundMessage{
		Type:      "message",
		Role:      string(conversation.RoleAssistant),
		Text:      reply.Text,
		TurnID:    string(reply.TurnID),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) sendError(conn *websocket.Conn, err error) {
	if errors.Is(err, conversation.ErrSessionBusy) {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "busy"})
		return
	}
	status, text := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("webchat: turn failed", "error", err)
	}
	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: text})
}

type sessionResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []HistoryMessage `json:"messages"`
}

type messageResponse struct {
	SessionID string             `json:"session_id"`
	Reply     conversation.Reply `json:"reply"`
}

// HandleCreateSession starts a session and returns its greeting history.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Create(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID: session.ID(),
		Messages:  historyMessages(session.Snapshot()),
	})
}

// HandleMessage is the HTTP fallback for sending messages. A missing
// session_id starts a new session.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "message is too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var (
		session *conversation.Session
		err     error
	)
	if req.SessionID == "" {
		session, err = h.sessions.Create(r.Context())
	} else {
		session, err = h.sessions.Get(r.Context(), req.SessionID)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	reply, err := session.Send(r.Context(), req.Text)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{SessionID: session.ID(), Reply: reply})
}

// HandleHistory returns chat history for a session.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session parameter required"})
		return
	}
	session, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: session.ID(), Messages: historyMessages(session.Snapshot())})
}

// HandleReset restarts the conversation of the session in the path.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Reset(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: session.ID(), Messages: historyMessages(session.Snapshot())})
}

// HandleDestroy ends the session in the path.
func (h *Handler) HandleDestroy(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleWidgetJS serves the embeddable widget JavaScript.
func (h *Handler) HandleWidgetJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(h.widgetJS)
}

// HandleIndex serves the standalone chat page.
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(h.index)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, text := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("webchat: request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": text})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
