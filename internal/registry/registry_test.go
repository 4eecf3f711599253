package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/edgegate/internal/config"
	"github.com/vyrodovalexey/edgegate/internal/util"
)

func svcConfig(id, baseURL string) config.ServiceConfig {
	return config.ServiceConfig{
		ID:         id,
		BaseURL:    baseURL,
		HealthPath: "/health",
		Timeout:    config.Duration(5 * time.Second),
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := New()

	require.NoError(t, r.Register(svcConfig("users", "http://users:8080")))

	svc, err := r.Get("users")
	require.NoError(t, err)
	assert.Equal(t, "users", svc.ID)
	assert.Equal(t, "http://users:8080", svc.BaseURL.String())
	assert.Equal(t, StateUnknown, svc.State)
}

func TestRegisterIdempotent(t *testing.T) {
	r := New()

	require.NoError(t, r.Register(svcConfig("users", "http://users:8080")))
	require.NoError(t, r.Register(svcConfig("users", "http://users:8080")))
	assert.Equal(t, 1, r.Len())
}

func TestRegisterConflict(t *testing.T) {
	r := New()

	require.NoError(t, r.Register(svcConfig("users", "http://users:8080")))
	err := r.Register(svcConfig("users", "http://other:9000"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, util.ErrConfigInvalid))
}

func TestGetUnknownService(t *testing.T) {
	r := New()

	_, err := r.Get("ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, util.ErrNotFound))
}

func TestGetReturnsSnapshot(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(svcConfig("users", "http://users:8080")))

	svc, err := r.Get("users")
	require.NoError(t, err)
	svc.State = StateUnhealthy

	fresh, err := r.Get("users")
	require.NoError(t, err)
	assert.Equal(t, StateUnknown, fresh.State)
}

func TestSetHealth(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(svcConfig("users", "http://users:8080")))

	now := time.Now()
	require.NoError(t, r.SetHealth("users", StateHealthy, now, 12*time.Millisecond, ""))

	svc, err := r.Get("users")
	require.NoError(t, err)
	assert.Equal(t, StateHealthy, svc.State)
	assert.Equal(t, 12*time.Millisecond, svc.LastLatency)
}

func TestSetHealthDiscardsStaleResult(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(svcConfig("users", "http://users:8080")))

	now := time.Now()
	require.NoError(t, r.SetHealth("users", StateHealthy, now, 0, ""))
	// A probe that started earlier finishes late and must not win.
	require.NoError(t, r.SetHealth("users", StateUnhealthy, now.Add(-time.Second), 0, "timeout"))

	svc, err := r.Get("users")
	require.NoError(t, err)
	assert.Equal(t, StateHealthy, svc.State)
}

func TestSetProbeResultKeepsState(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(svcConfig("users", "http://users:8080")))

	now := time.Now()
	require.NoError(t, r.SetHealth("users", StateHealthy, now, 0, ""))
	require.NoError(t, r.SetProbeResult("users", now.Add(time.Second), 8*time.Millisecond, "unexpected status 500"))

	svc, err := r.Get("users")
	require.NoError(t, err)
	assert.Equal(t, StateHealthy, svc.State)
	assert.Equal(t, now.Add(time.Second), svc.LastCheckedAt)
	assert.Equal(t, 8*time.Millisecond, svc.LastLatency)
	assert.Equal(t, "unexpected status 500", svc.LastError)
}

func TestSetProbeResultDiscardsStaleResult(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(svcConfig("users", "http://users:8080")))

	now := time.Now()
	require.NoError(t, r.SetHealth("users", StateHealthy, now, 0, ""))
	require.NoError(t, r.SetProbeResult("users", now.Add(-time.Second), 0, "timeout"))

	svc, err := r.Get("users")
	require.NoError(t, err)
	assert.Empty(t, svc.LastError)
	assert.Equal(t, now, svc.LastCheckedAt)
}

func TestSetProbeResultUnknownService(t *testing.T) {
	r := New()

	err := r.SetProbeResult("ghost", time.Now(), 0, "refused")
	assert.Error(t, err)
}

func TestSetHealthUnknownService(t *testing.T) {
	r := New()

	err := r.SetHealth("ghost", StateHealthy, time.Now(), 0, "")
	assert.Error(t, err)
}

func TestListAllSorted(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(svcConfig("zebra", "http://zebra:1")))
	require.NoError(t, r.Register(svcConfig("alpha", "http://alpha:1")))
	require.NoError(t, r.Register(svcConfig("mid", "http://mid:1")))

	all := r.ListAll()
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].ID)
	assert.Equal(t, "mid", all[1].ID)
	assert.Equal(t, "zebra", all[2].ID)
}

func TestHealthStateString(t *testing.T) {
	assert.Equal(t, "unknown", StateUnknown.String())
	assert.Equal(t, "healthy", StateHealthy.String())
	assert.Equal(t, "unhealthy", StateUnhealthy.String())
}
