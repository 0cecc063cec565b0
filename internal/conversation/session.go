package conversation

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dounykim/E-commerce-chatbot-groq/internal/observability/metrics"
	"github.com/dounykim/E-commerce-chatbot-groq/internal/tracing"
	"github.com/dounykim/E-commerce-chatbot-groq/pkg/logging"
)

var sessionTracer = otel.Tracer("shopbot.internal.conversation.session")

const persistTimeout = 2 * time.Second

// TurnCompleter produces the assistant reply for a prefix and history.
type TurnCompleter interface {
	Complete(ctx context.Context, systemInstruction, greeting string, history []Turn) (string, error)
}

// TraceRecorder accepts one record per completed turn without blocking.
type TraceRecorder interface {
	Record(rec tracing.Record) bool
}

// Reply is the outcome of one successful Send.
type Reply struct {
	UserTurnID TurnID `json:"user_turn_id"`
	TurnID     TurnID `json:"turn_id"`
	Text       string `json:"text"`
	Refused    bool   `json:"refused,omitempty"`
}

// Session is one customer conversation: its history, the shared prefix and
// the collaborators a turn needs.
type Session struct {
	id        string
	prefix    Prefix
	state     *State
	completer TurnCompleter
	store     SessionStore
	recorder  TraceRecorder
	metrics   *metrics.ChatMetrics
	logger    *logging.Logger
	guard     bool
	refusal   string
	now       func() time.Time

	createdAt  time.Time
	lastActive atomic.Int64
	busy       atomic.Bool

	// lifecycle orders snapshot writes against close so no save lands after
	// the session was removed.
	lifecycle sync.Mutex
	closed    atomic.Bool
}

type sessionDeps struct {
	completer TurnCompleter
	store     SessionStore
	recorder  TraceRecorder
	metrics   *metrics.ChatMetrics
	logger    *logging.Logger
	guard     bool
	refusal   string
	now       func() time.Time
}

func newSession(id string, prefix Prefix, deps sessionDeps, createdAt time.Time) *Session {
	greeting := ""
	if prefix.SeedGreeting {
		greeting = prefix.Greeting
	}
	if deps.now == nil {
		deps.now = time.Now
	}
	s := &Session{
		id:        id,
		prefix:    prefix,
		state:     NewState(greeting),
		completer: deps.completer,
		store:     deps.store,
		recorder:  deps.recorder,
		metrics:   deps.metrics,
		logger:    deps.logger.ForSession(id),
		guard:     deps.guard,
		refusal:   deps.refusal,
		now:       deps.now,
		createdAt: createdAt,
	}
	s.touch()
	return s
}

func (s *Session) ID() string { return s.id }

// CatalogFingerprint identifies the catalog the session was created with.
func (s *Session) CatalogFingerprint() string { return s.prefix.CatalogFingerprint }

// Busy reports whether a completion is outstanding.
func (s *Session) Busy() bool { return s.busy.Load() }

// LastActive returns the time of the last turn or reset.
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

func (s *Session) Snapshot() []Turn { return s.state.Snapshot() }

func (s *Session) touch() { s.lastActive.Store(s.now().UnixNano()) }

// close marks the session ended. Later turns fail with ErrSessionNotFound and
// nothing more is written to the store.
func (s *Session) close() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.closed.Store(true)
}

// Send runs one turn. Blank text fails with ErrEmptyInput before any change;
// a second Send while one is outstanding fails with ErrSessionBusy. On a
// *CompletionProviderError the user turn stays and no assistant turn is added.
func (s *Session) Send(ctx context.Context, text string) (Reply, error) {
	if strings.TrimSpace(text) == "" {
		s.metrics.ObserveTurn("empty")
		return Reply{}, ErrEmptyInput
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.metrics.ObserveTurn("busy")
		return Reply{}, ErrSessionBusy
	}
	defer s.busy.Store(false)
	if s.closed.Load() {
		return Reply{}, ErrSessionNotFound
	}

	ctx, span := sessionTracer.Start(ctx, "conversation.send")
	defer span.End()

	started := s.now()
	userID, err := s.state.AppendUser(text)
	if err != nil {
		return Reply{}, err
	}
	s.touch()

	history := s.state.Snapshot()
	span.SetAttributes(attribute.Int("shopbot.history_len", len(history)))

	var (
		replyText string
		refused   bool
	)
	if s.guard && Unsupported(text) {
		replyText = s.refusal
		refused = true
		s.logger.Info("conversation: unsupported language refused locally", "input_len", len(text))
	} else {
		replyText, err = s.completer.Complete(ctx, s.prefix.Instruction, "", history)
		if err != nil {
			span.RecordError(err)
			s.persist(ctx)
			s.metrics.ObserveTurn("provider_error")
			s.logger.Warn("conversation: completion failed", "turn_id", userID, "error", err)
			return Reply{UserTurnID: userID}, err
		}
	}

	if s.closed.Load() {
		s.logger.Info("conversation: session ended during turn, reply discarded", "turn_id", userID)
		return Reply{UserTurnID: userID}, ErrSessionNotFound
	}

	turnID := s.state.AppendAssistant(replyText)
	s.touch()
	s.persist(ctx)

	outcome := "completed"
	if refused {
		outcome = "refused"
	}
	s.metrics.ObserveTurn(outcome)
	span.SetAttributes(attribute.String("shopbot.outcome", outcome))

	if s.recorder != nil {
		s.recorder.Record(tracing.NewChatRecord(
			text,
			replyText,
			traceContext(Assemble(s.prefix.Instruction, "", history)),
			started,
			map[string]string{
				"session_id":          s.id,
				"turn_id":             string(turnID),
				"outcome":             outcome,
				"catalog_fingerprint": s.prefix.CatalogFingerprint,
				"greeted":             strconv.FormatBool(s.state.Greeted()),
			},
		))
	}

	s.logger.Debug("conversation: turn completed", "turn_id", turnID, "reply_len", len(replyText))
	return Reply{UserTurnID: userID, TurnID: turnID, Text: replyText, Refused: refused}, nil
}

// Reset clears the history back to a fresh greeting.
func (s *Session) Reset(ctx context.Context) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrSessionBusy
	}
	defer s.busy.Store(false)
	if s.closed.Load() {
		return ErrSessionNotFound
	}
	s.state.Reset()
	s.touch()
	s.persist(ctx)
	return nil
}

func (s *Session) restore(stored StoredSession) {
	s.state.Restore(stored.Turns)
	if !stored.CreatedAt.IsZero() {
		s.createdAt = stored.CreatedAt
	}
	if !stored.UpdatedAt.IsZero() {
		s.lastActive.Store(stored.UpdatedAt.UnixNano())
	}
}

func (s *Session) stored() StoredSession {
	return StoredSession{
		ID:                 s.id,
		Turns:              s.state.Snapshot(),
		CatalogFingerprint: s.prefix.CatalogFingerprint,
		CreatedAt:          s.createdAt,
		UpdatedAt:          s.LastActive().UTC(),
	}
}

// persist saves a snapshot; failures are logged and the turn stands.
func (s *Session) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.closed.Load() {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.store.Save(saveCtx, s.stored()); err != nil {
		s.logger.Warn("conversation: failed to persist session", "error", err)
	}
}

func traceContext(messages []ChatMessage) []tracing.Message {
	out := make([]tracing.Message, 0, len(messages))
	for _, msg := range messages {
		out = append(out, tracing.Message{Role: string(msg.Role), Content: msg.Content})
	}
	return out
}
