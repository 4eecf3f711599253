package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client, "test:")
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStoreGetSet(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.True(t, IsKeyNotFound(err))

	require.NoError(t, s.Set(ctx, "k", 42, time.Minute))

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestRedisStoreKeysArePrefixed(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", 1, time.Minute))
	assert.True(t, mr.Exists("test:k"))
}

func TestRedisStoreIncrementWithExpiry(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	v, err := s.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = s.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	// Expiry was set on first increment.
	ttl := mr.TTL("test:counter")
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisStoreSlidingWindowAllow(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := s.SlidingWindowAllow(ctx, "client", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should be admitted", i+1)
		assert.Equal(t, int64(i+1), d.Count)
	}

	d, err := s.SlidingWindowAllow(ctx, "client", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)
}

func TestRedisStoreSlidingWindowExpiresEntries(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	d, err := s.SlidingWindowAllow(ctx, "client", 1, 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = s.SlidingWindowAllow(ctx, "client", 1, 100*time.Millisecond)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// Advance past the window; old entries age out of the set.
	mr.FastForward(200 * time.Millisecond)
	time.Sleep(110 * time.Millisecond)

	d, err = s.SlidingWindowAllow(ctx, "client", 1, 100*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedisStoreDelete(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", 1, time.Minute))
	require.NoError(t, s.Delete(ctx, "k"))

	_, err := s.Get(ctx, "k")
	assert.True(t, IsKeyNotFound(err))
}

func TestRedisStoreCloseIdempotent(t *testing.T) {
	s, _ := newTestRedisStore(t)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
