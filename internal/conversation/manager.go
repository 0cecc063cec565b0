package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dounykim/E-commerce-chatbot-groq/internal/catalog"
	"github.com/dounykim/E-commerce-chatbot-groq/internal/observability/metrics"
	"github.com/dounykim/E-commerce-chatbot-groq/pkg/logging"
)

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithSessionStore persists snapshots so sessions survive restarts within
// their TTL.
func WithSessionStore(store SessionStore) ManagerOption {
	return func(m *Manager) {
		m.store = store
	}
}

// WithTraceRecorder sends one trace per completed turn.
func WithTraceRecorder(recorder TraceRecorder) ManagerOption {
	return func(m *Manager) {
		m.recorder = recorder
	}
}

func WithMetrics(cm *metrics.ChatMetrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = cm
	}
}

// WithSessionTTL sets how long an idle session is kept.
func WithSessionTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithLanguageGuard toggles the local refusal of non-Korean, non-English
// scripts.
func WithLanguageGuard(enabled bool) ManagerOption {
	return func(m *Manager) {
		m.guard = enabled
	}
}

// WithClock overrides time.Now; used by tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager owns the live sessions and the prefix they share. The prefix is
// computed once from the catalog and never changes for the process lifetime.
type Manager struct {
	prefix    Prefix
	refusal   string
	completer TurnCompleter
	store     SessionStore
	recorder  TraceRecorder
	metrics   *metrics.ChatMetrics
	logger    *logging.Logger
	ttl       time.Duration
	guard     bool
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(composer *Composer, cat catalog.Text, completer TurnCompleter, logger *logging.Logger, opts ...ManagerOption) *Manager {
	if composer == nil {
		panic("conversation: composer cannot be nil")
	}
	if completer == nil {
		panic("conversation: completer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	m := &Manager{
		prefix:    composer.Compose(cat),
		refusal:   composer.RefusalMessage(),
		completer: completer,
		logger:    logger,
		ttl:       defaultSessionTTL,
		guard:     true,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Prefix returns the shared request prefix.
func (m *Manager) Prefix() Prefix { return m.prefix }

func (m *Manager) deps() sessionDeps {
	return sessionDeps{
		completer: m.completer,
		store:     m.store,
		recorder:  m.recorder,
		metrics:   m.metrics,
		logger:    m.logger,
		guard:     m.guard,
		refusal:   m.refusal,
		now:       m.now,
	}
}

// Create starts a session whose history holds only the greeting.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	s := newSession(uuid.NewString(), m.prefix, m.deps(), m.now().UTC())

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	m.metrics.SessionOpened()

	s.persist(ctx)
	m.logger.Info("conversation: session created", "session_id", s.id, "catalog_fingerprint", m.prefix.CatalogFingerprint)
	return s, nil
}

// Get returns a live session, rehydrating it from the store when needed.
// Snapshots taken under a different catalog or idle past the TTL are
// discarded.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		return s, nil
	}
	if m.store == nil {
		return nil, ErrSessionNotFound
	}

	stored, err := m.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("conversation: rehydrate session: %w", err)
	}
	if stored.CatalogFingerprint != m.prefix.CatalogFingerprint || m.expired(stored.UpdatedAt) {
		m.logger.Info("conversation: discarding stale session", "session_id", id)
		if err := m.store.Delete(ctx, id); err != nil {
			m.logger.Warn("conversation: failed to delete stale session", "session_id", id, "error", err)
		}
		return nil, ErrSessionNotFound
	}

	s = newSession(id, m.prefix, m.deps(), stored.CreatedAt)
	s.restore(stored)

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.sessions[id] = s
	m.mu.Unlock()
	m.metrics.SessionOpened()
	return s, nil
}

// Reset restarts the conversation of session id.
func (m *Manager) Reset(ctx context.Context, id string) (*Session, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.Reset(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Destroy ends a session and removes its snapshot.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	live := m.remove(id)
	if m.store == nil {
		if !live {
			return ErrSessionNotFound
		}
		return nil
	}
	if !live {
		if _, err := m.store.Load(ctx, id); errors.Is(err, ErrSessionNotFound) {
			return ErrSessionNotFound
		}
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Info("conversation: session destroyed", "session_id", id)
	return nil
}

func (m *Manager) remove(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.close()
		m.metrics.SessionClosed()
	}
	return ok
}

func (m *Manager) expired(lastActive time.Time) bool {
	return !lastActive.IsZero() && m.now().Sub(lastActive) > m.ttl
}

// Sweep destroys sessions idle longer than the TTL and returns how many were
// removed. Busy sessions are skipped.
func (m *Manager) Sweep(ctx context.Context) int {
	m.mu.Lock()
	var idle []string
	for id, s := range m.sessions {
		if !s.Busy() && m.expired(s.LastActive()) {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()

	for _, id := range idle {
		m.remove(id)
		if m.store != nil {
			if err := m.store.Delete(ctx, id); err != nil {
				m.logger.Warn("conversation: failed to delete expired session", "session_id", id, "error", err)
			}
		}
	}
	if len(idle) > 0 {
		m.logger.Info("conversation: swept idle sessions", "count", len(idle))
	}
	return len(idle)
}

// Run sweeps on every interval tick until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
