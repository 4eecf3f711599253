package util

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAuthenticationError(t *testing.T) {
	cause := errors.New("bad signature")
	err := NewAuthenticationError("token verification failed", cause)

	assert.Contains(t, err.Error(), "token verification failed")
	assert.True(t, errors.Is(err, ErrUnauthenticated))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestAuthorizationError(t *testing.T) {
	err := NewAuthorizationError("viewer", []string{"admin", "editor"})

	assert.Contains(t, err.Error(), "viewer")
	assert.True(t, errors.Is(err, ErrForbidden))
	assert.False(t, errors.Is(err, ErrUnauthenticated))
}

func TestRateLimitErrorRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter time.Duration
		want       int
	}{
		{"zero clamps to one", 0, 1},
		{"negative clamps to one", -time.Second, 1},
		{"sub-second rounds up", 200 * time.Millisecond, 1},
		{"exact second", time.Second, 1},
		{"partial rounds up", 1500 * time.Millisecond, 2},
		{"multiple seconds", 30 * time.Second, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRateLimitError(10, tt.retryAfter)
			assert.Equal(t, tt.want, err.RetryAfterSeconds())
		})
	}
}

func TestServiceNotFoundError(t *testing.T) {
	err := NewServiceNotFoundError("billing")

	assert.Contains(t, err.Error(), "billing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRouteNotFoundError(t *testing.T) {
	err := NewRouteNotFoundError("GET", "/nope")

	assert.Contains(t, err.Error(), "/nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpstreamError(t *testing.T) {
	cause := errors.New("connection refused")

	err := NewUpstreamError("users", false, cause)
	assert.True(t, errors.Is(err, ErrUpstreamUnavail))
	assert.False(t, errors.Is(err, ErrTimeout))

	timeoutErr := NewUpstreamError("users", true, cause)
	assert.True(t, errors.Is(timeoutErr, ErrTimeout))
}

func TestConfigError(t *testing.T) {
	err := NewConfigError("services.users.base_url", "invalid base url", nil)

	assert.Contains(t, err.Error(), "services.users.base_url")
	assert.True(t, errors.Is(err, ErrConfigInvalid))
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil, "context"))

	base := errors.New("boom")
	wrapped := WrapError(base, "loading config")
	assert.True(t, errors.Is(wrapped, base))
	assert.Contains(t, wrapped.Error(), "loading config")
}
