package util

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorEnvelope(t *testing.T) {
	r := httptest.NewRequest("GET", "/x", nil)
	r = r.WithContext(ContextWithRequestID(r.Context(), "req-42"))

	w := httptest.NewRecorder()
	WriteErrorEnvelope(w, r, http.StatusNotFound, CodeResourceNotFound, "no route matches /x", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var env ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))

	assert.False(t, env.Success)
	assert.Equal(t, CodeResourceNotFound, env.Error.Code)
	assert.Equal(t, "no route matches /x", env.Error.Message)
	assert.Nil(t, env.Error.Details)
	assert.Equal(t, "req-42", env.RequestID)

	ts, err := time.Parse(time.RFC3339, env.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), ts, time.Minute)
}

func TestWriteErrorEnvelopeWithDetails(t *testing.T) {
	r := httptest.NewRequest("GET", "/x", nil)

	w := httptest.NewRecorder()
	WriteErrorEnvelope(w, r, http.StatusTooManyRequests, CodeRateLimitExceeded, "rate limit exceeded",
		map[string]any{"retryAfterSeconds": 7})

	var env ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))

	details, ok := env.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(7), details["retryAfterSeconds"])

	// No request-id middleware ran; the field is present but empty.
	assert.Empty(t, env.RequestID)
}

func TestEnvelopeFieldNames(t *testing.T) {
	r := httptest.NewRequest("GET", "/x", nil)
	r = r.WithContext(ContextWithRequestID(r.Context(), "rid"))

	w := httptest.NewRecorder()
	WriteErrorEnvelope(w, r, http.StatusInternalServerError, CodeInternalError, "boom", nil)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))

	assert.Contains(t, raw, "success")
	assert.Contains(t, raw, "error")
	assert.Contains(t, raw, "timestamp")
	assert.Contains(t, raw, "requestId")
}

func TestContextHelpers(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "rid")
	assert.Equal(t, "rid", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))

	start := time.Now().Add(-time.Second)
	ctx = ContextWithStartTime(ctx, start)
	assert.Equal(t, start, StartTimeFromContext(ctx))
	assert.GreaterOrEqual(t, ElapsedTime(ctx), time.Second)
	assert.Equal(t, time.Duration(0), ElapsedTime(context.Background()))

	ctx = ContextWithRouteClass(ctx, "sensitive")
	assert.Equal(t, "sensitive", RouteClassFromContext(ctx))

	ctx = ContextWithService(ctx, "users")
	assert.Equal(t, "users", ServiceFromContext(ctx))
}
