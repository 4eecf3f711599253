// Package ratelimit provides per-client request admission for the gateway.
// It supports sliding window and token bucket algorithms over local or
// distributed state.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a request identified by key is admitted.
type Limiter interface {
	// Allow checks if a single request is allowed for the given key.
	Allow(ctx context.Context, key string) (*Result, error)

	// Reset clears the rate limit state for the given key.
	Reset(ctx context.Context, key string) error
}

// Result is the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is admitted.
	Allowed bool

	// Limit is the maximum number of requests allowed in the window.
	Limit int

	// Remaining is the number of requests left in the current window.
	Remaining int

	// RetryAfter is the duration until the next request could be admitted.
	// Zero when the request was allowed.
	RetryAfter time.Duration
}

// Algorithm selects the admission algorithm.
type Algorithm string

const (
	// AlgorithmSlidingWindow tracks exact request timestamps in the window.
	AlgorithmSlidingWindow Algorithm = "sliding_window"

	// AlgorithmTokenBucket refills permits at a steady rate.
	AlgorithmTokenBucket Algorithm = "token_bucket"
)

// Config holds configuration for creating a limiter.
type Config struct {
	Algorithm Algorithm
	Requests  int
	Window    time.Duration
}

// NoopLimiter admits every request. Used for classes with rate limiting
// disabled.
type NoopLimiter struct{}

// NewNoopLimiter creates a limiter that always allows.
func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

// Allow implements Limiter.
func (l *NoopLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return &Result{Allowed: true}, nil
}

// Reset implements Limiter.
func (l *NoopLimiter) Reset(ctx context.Context, key string) error {
	return nil
}
