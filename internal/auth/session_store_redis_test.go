package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStoreTest(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := NewRedisSessionStore(rdb, "test")
	require.NoError(t, err)
	return store, mr
}

func TestRedisSessionStoreRoundTrip(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	require.NoError(t, store.Insert(ctx, Session{ID: "sid", UserID: "u1", ExpiresAt: exp}))
	require.True(t, mr.Exists("test:s:sid"))
	require.Greater(t, mr.TTL("test:s:sid"), 59*time.Minute)

	got, err := store.Find(ctx, "sid")
	require.NoError(t, err)
	require.Equal(t, "u1", got.UserID)
	require.True(t, got.ExpiresAt.Equal(exp))

	newExp := exp.Add(2 * time.Hour)
	require.NoError(t, store.UpdateExpiry(ctx, "sid", newExp))
	got, err = store.Find(ctx, "sid")
	require.NoError(t, err)
	require.True(t, got.ExpiresAt.Equal(newExp))
	require.Greater(t, mr.TTL("test:s:sid"), 2*time.Hour)
}

func TestRedisSessionStoreDeleteIsIdempotent(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, Session{ID: "sid", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Delete(ctx, "sid"))
	require.NoError(t, store.Delete(ctx, "sid"))

	_, err := store.Find(ctx, "sid")
	require.ErrorIs(t, err, ErrSessionNotFound)
	members, _ := mr.Members("test:u:u1")
	require.NotContains(t, members, "sid")
}

func TestRedisSessionStoreExpiresWithTTL(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, Session{ID: "sid", UserID: "u1", ExpiresAt: time.Now().Add(time.Minute)}))
	mr.FastForward(2 * time.Minute)

	_, err := store.Find(ctx, "sid")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.ErrorIs(t, store.UpdateExpiry(ctx, "sid", time.Now().Add(time.Hour)), ErrSessionNotFound)

	n, err := store.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRedisSessionStoreDeleteByUser(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	require.NoError(t, store.Insert(ctx, Session{ID: "a", UserID: "u1", ExpiresAt: exp}))
	require.NoError(t, store.Insert(ctx, Session{ID: "b", UserID: "u1", ExpiresAt: exp}))
	require.NoError(t, store.Insert(ctx, Session{ID: "c", UserID: "u2", ExpiresAt: exp}))

	n, err := store.DeleteByUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.False(t, mr.Exists("test:u:u1"))

	_, err = store.Find(ctx, "c")
	require.NoError(t, err)
}

func TestRedisSessionStoreBackingSessionManager(t *testing.T) {
	store, _ := newRedisStoreTest(t)
	users := NewInMemoryUserStore()
	_, err := users.Insert(context.Background(), User{ID: "u1", Username: "alice", PasswordHash: "h", Role: RoleUser})
	require.NoError(t, err)

	m, err := NewSessionManager(store, users, SessionManagerConfig{TTL: time.Hour})
	require.NoError(t, err)
	ctx := context.Background()

	sess, _, err := m.CreateSession(ctx, "u1")
	require.NoError(t, err)

	v, err := m.ValidateSession(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, v.Authenticated())
	require.Nil(t, v.Cookie)

	require.NoError(t, m.InvalidateSession(ctx, sess.ID))
	v, err = m.ValidateSession(ctx, sess.ID)
	require.NoError(t, err)
	require.False(t, v.Authenticated())
}
