package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dounykim/E-commerce-chatbot-groq/internal/catalog"
	"github.com/dounykim/E-commerce-chatbot-groq/internal/observability/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func activeSessions(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "shopbot_chat_active_sessions" {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatal("active sessions gauge not registered")
	return 0
}

func TestManagerCreateGetDestroy(t *testing.T) {
	m, _ := newTestManager(t, &stubLLM{reply: "ok"})
	ctx := context.Background()

	s, err := m.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, catalog.Default().Fingerprint(), s.CatalogFingerprint())

	got, err := m.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Get(ctx, "")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, m.Destroy(ctx, s.ID()))
	assert.Equal(t, 0, m.Len())
	_, err = m.Get(ctx, s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, m.Destroy(ctx, s.ID()), ErrSessionNotFound)
}

func TestManagerResetByID(t *testing.T) {
	m, _ := newTestManager(t, &stubLLM{reply: "ok"})
	ctx := context.Background()
	s, err := m.Create(ctx)
	require.NoError(t, err)
	_, err = s.Send(ctx, "hi")
	require.NoError(t, err)

	reset, err := m.Reset(ctx, s.ID())
	require.NoError(t, err)
	assert.Len(t, reset.Snapshot(), 1)

	_, err = m.Reset(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerSweepRemovesIdleSessions(t *testing.T) {
	clock := newFakeClock()
	store := NewMemorySessionStore()
	reg := prometheus.NewRegistry()
	cm := metrics.NewChatMetrics(reg)
	m, _ := newTestManager(t, &stubLLM{reply: "ok"},
		WithClock(clock.Now),
		WithSessionTTL(time.Hour),
		WithSessionStore(store),
		WithMetrics(cm),
	)
	ctx := context.Background()

	idle, err := m.Create(ctx)
	require.NoError(t, err)
	clock.Advance(45 * time.Minute)
	active, err := m.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(2), activeSessions(t, reg))

	clock.Advance(30 * time.Minute)
	assert.Equal(t, 1, m.Sweep(ctx))
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, float64(1), activeSessions(t, reg))

	_, err = m.Get(ctx, idle.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Load(ctx, idle.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	got, err := m.Get(ctx, active.ID())
	require.NoError(t, err)
	assert.Same(t, active, got)
}

func TestManagerSweepSkipsBusySessions(t *testing.T) {
	clock := newFakeClock()
	llm := &stubLLM{reply: "ok", entered: make(chan struct{}, 1), gate: make(chan struct{})}
	m, _ := newTestManager(t, llm, WithClock(clock.Now), WithSessionTTL(time.Minute))
	ctx := context.Background()
	s, err := m.Create(ctx)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, _ = s.Send(ctx, "hi")
		close(done)
	}()
	<-llm.entered
	clock.Advance(time.Hour)
	assert.Equal(t, 0, m.Sweep(ctx))

	close(llm.gate)
	<-done
}

func TestManagerDestroyDuringTurnStaysDestroyed(t *testing.T) {
	store := NewMemorySessionStore()
	llm := &stubLLM{reply: "Hoodies are $40.", entered: make(chan struct{}, 1), gate: make(chan struct{})}
	m, rec := newTestManager(t, llm, WithSessionStore(store))
	ctx := context.Background()
	s, err := m.Create(ctx)
	require.NoError(t, err)

	type result struct {
		reply Reply
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := s.Send(ctx, "How much is a hoodie?")
		done <- result{reply, err}
	}()
	<-llm.entered

	require.NoError(t, m.Destroy(ctx, s.ID()))
	close(llm.gate)
	res := <-done

	assert.ErrorIs(t, res.err, ErrSessionNotFound)
	assert.Empty(t, res.reply.TurnID)
	assert.Empty(t, rec.all())

	_, err = store.Load(ctx, s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Get(ctx, s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerSweptSessionRejectsLaterTurns(t *testing.T) {
	clock := newFakeClock()
	store := NewMemorySessionStore()
	llm := &stubLLM{reply: "ok"}
	m, rec := newTestManager(t, llm, WithClock(clock.Now), WithSessionTTL(time.Minute), WithSessionStore(store))
	ctx := context.Background()
	s, err := m.Create(ctx)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	require.Equal(t, 1, m.Sweep(ctx))

	_, err = s.Send(ctx, "still there?")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, s.Reset(ctx), ErrSessionNotFound)
	assert.Zero(t, llm.calls())
	assert.Empty(t, rec.all())

	_, err = store.Load(ctx, s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Get(ctx, s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerRehydratesFromStore(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	first, _ := newTestManager(t, &stubLLM{reply: "Jeans are $50."}, WithSessionStore(store))
	s, err := first.Create(ctx)
	require.NoError(t, err)
	_, err = s.Send(ctx, "How much are jeans?")
	require.NoError(t, err)

	llm := &stubLLM{reply: "They come in Blue, Black, Gray and Navy."}
	second, _ := newTestManager(t, llm, WithSessionStore(store))
	restored, err := second.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, s.Snapshot(), restored.Snapshot())

	_, err = restored.Send(ctx, "Which colors?")
	require.NoError(t, err)
	assert.Len(t, llm.lastRequest().Messages, 5)
	assert.Len(t, restored.Snapshot(), 5)
}

func TestManagerDiscardsSnapshotFromOtherCatalog(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	first, _ := newTestManager(t, &stubLLM{reply: "ok"}, WithSessionStore(store))
	s, err := first.Create(ctx)
	require.NoError(t, err)

	other := catalog.Text("## Shoes:\n- Sneakers\n  - Price: $80\n")
	second, _ := newTestManagerWith(t, ComposerConfig{}, other, &stubLLM{reply: "ok"}, WithSessionStore(store))
	_, err = second.Get(ctx, s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = store.Load(ctx, s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerRunStopsOnCancel(t *testing.T) {
	m, _ := newTestManager(t, &stubLLM{reply: "ok"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMemorySessionStoreCopiesTurns(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	turns := []Turn{{ID: "t1", Role: RoleAssistant, Text: "hello"}}
	require.NoError(t, store.Save(ctx, StoredSession{ID: "s1", Turns: turns}))
	turns[0].Text = "mutated"

	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Turns[0].Text)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Load(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
