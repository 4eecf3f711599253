package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketBurst(t *testing.T) {
	l := NewTokenBucketLimiter(5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := l.Allow(ctx, "client")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be admitted", i+1)
	}

	res, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestTokenBucketRefill(t *testing.T) {
	// 10 permits per 100ms refills one permit every 10ms.
	l := NewTokenBucketLimiter(10, 100*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		res, err := l.Allow(ctx, "client")
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	res, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	time.Sleep(30 * time.Millisecond)

	res, err = l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestTokenBucketKeysAreIndependent(t *testing.T) {
	l := NewTokenBucketLimiter(1, time.Minute)
	ctx := context.Background()

	res, err := l.Allow(ctx, "a")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = l.Allow(ctx, "a")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	res, err = l.Allow(ctx, "b")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestTokenBucketReset(t *testing.T) {
	l := NewTokenBucketLimiter(1, time.Minute)
	ctx := context.Background()

	_, err := l.Allow(ctx, "client")
	require.NoError(t, err)

	require.NoError(t, l.Reset(ctx, "client"))

	res, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestTokenBucketCleanup(t *testing.T) {
	l := NewTokenBucketLimiter(1, time.Minute)
	ctx := context.Background()

	_, err := l.Allow(ctx, "stale")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	l.Cleanup(5 * time.Millisecond)

	l.mu.Lock()
	_, ok := l.buckets["stale"]
	l.mu.Unlock()
	assert.False(t, ok)
}
