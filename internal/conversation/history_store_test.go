package conversation

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSessionStore(client, ttl, nil), mr
}

func TestRedisSessionStoreRoundTrip(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	session := StoredSession{
		ID: "sess-1",
		Turns: []Turn{
			{ID: "t1", Role: RoleAssistant, Text: "안녕하세요. Trendy Fashion에 오신 것을 환영합니다! 무엇을 도와드릴까요?", CreatedAt: created},
			{ID: "t2", Role: RoleUser, Text: "티셔츠 가격이 얼마예요?", CreatedAt: created.Add(time.Second)},
		},
		CatalogFingerprint: "abc123",
		CreatedAt:          created,
		UpdatedAt:          created.Add(time.Second),
	}
	require.NoError(t, store.Save(ctx, session))

	assert.True(t, mr.Exists("shopbot:session:sess-1"))
	assert.Equal(t, time.Hour, mr.TTL("shopbot:session:sess-1"))

	got, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, session, got)

	require.NoError(t, store.Delete(ctx, "sess-1"))
	_, err = store.Load(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionStoreExpiry(t *testing.T) {
	store, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, StoredSession{ID: "sess-2"}))

	mr.FastForward(2 * time.Minute)
	_, err := store.Load(ctx, "sess-2")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionStoreDecodeAndConnectionErrors(t *testing.T) {
	store, mr := newRedisStore(t, 0)
	ctx := context.Background()

	require.NoError(t, mr.Set("shopbot:session:bad", "{not json"))
	_, err := store.Load(ctx, "bad")
	assert.ErrorContains(t, err, "decode session")

	mr.Close()
	assert.Error(t, store.Save(ctx, StoredSession{ID: "x"}))
	_, err = store.Load(ctx, "x")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisBackedManagerRehydrates(t *testing.T) {
	store, _ := newRedisStore(t, time.Hour)
	ctx := context.Background()

	first, _ := newTestManager(t, &stubLLM{reply: "The dress is $50."}, WithSessionStore(store))
	s, err := first.Create(ctx)
	require.NoError(t, err)
	_, err = s.Send(ctx, "How much is the dress?")
	require.NoError(t, err)

	second, _ := newTestManager(t, &stubLLM{reply: "ok"}, WithSessionStore(store))
	restored, err := second.Get(ctx, s.ID())
	require.NoError(t, err)

	want, got := s.Snapshot(), restored.Snapshot()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Text, got[i].Text)
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt))
	}
}

func TestNewRedisSessionStorePanicsOnNilClient(t *testing.T) {
	assert.Panics(t, func() { NewRedisSessionStore(nil, time.Hour, nil) })
}
