// Package store provides storage backends for rate limiting.
package store

import (
	"context"
	"time"
)

// Store is the generic counter storage used by rate limiters.
type Store interface {
	// Get retrieves the value for the given key.
	Get(ctx context.Context, key string) (int64, error)

	// Set sets the value for the given key with an expiration.
	Set(ctx context.Context, key string, value int64, expiration time.Duration) error

	// IncrementWithExpiry increments the value and sets expiration if the
	// key is new.
	IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error)

	// Delete removes the key from the store.
	Delete(ctx context.Context, key string) error

	// Close closes the store and releases resources.
	Close() error
}

// WindowDecision is an atomic sliding window evaluation result.
type WindowDecision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// WindowStore is implemented by stores that can evaluate an exact sliding
// window atomically. Stores lacking it fall back to sub-window counters.
type WindowStore interface {
	SlidingWindowAllow(ctx context.Context, key string, limit int, window time.Duration) (*WindowDecision, error)
}

// ErrKeyNotFound is returned when a key is not found in the store.
type ErrKeyNotFound struct {
	Key string
}

func (e *ErrKeyNotFound) Error() string {
	return "key not found: " + e.Key
}

// IsKeyNotFound returns true if the error is a key not found error.
func IsKeyNotFound(err error) bool {
	_, ok := err.(*ErrKeyNotFound)
	return ok
}
