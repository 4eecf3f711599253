package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucketLimiter admits requests from a bucket refilled at limit
// permits per window. Smoother than a sliding window under steady load,
// available as a per-class alternative.
type TokenBucketLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*bucketEntry
}

type bucketEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucketLimiter creates a token bucket limiter with burst equal to
// the per-window limit.
func NewTokenBucketLimiter(limit int, window time.Duration) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucketEntry),
	}
}

// bucket returns the limiter for key, creating it on first use.
func (l *TokenBucketLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.buckets[key]
	if !ok {
		refill := rate.Limit(float64(l.limit) / l.window.Seconds())
		entry = &bucketEntry{limiter: rate.NewLimiter(refill, l.limit)}
		l.buckets[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	lim := l.bucket(key)

	res := lim.Reserve()
	if !res.OK() {
		return &Result{Allowed: false, Limit: l.limit, RetryAfter: l.window}, nil
	}

	delay := res.Delay()
	if delay > 0 {
		res.Cancel()
		return &Result{
			Allowed:    false,
			Limit:      l.limit,
			RetryAfter: delay,
		}, nil
	}

	return &Result{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: int(lim.Tokens()),
	}, nil
}

// Reset implements Limiter.
func (l *TokenBucketLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
	return nil
}

// Cleanup drops buckets idle longer than maxAge.
func (l *TokenBucketLimiter) Cleanup(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, entry := range l.buckets {
		if entry.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
