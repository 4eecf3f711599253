package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/edgegate/internal/config"
	"github.com/vyrodovalexey/edgegate/internal/health"
	"github.com/vyrodovalexey/edgegate/internal/observability"
	"github.com/vyrodovalexey/edgegate/internal/registry"
)

func newTestServer(t *testing.T) (*Server, *registry.Registry, *health.Monitor) {
	t.Helper()

	reg := registry.New()
	monitor := health.NewMonitor(reg, time.Hour, time.Second, 3)
	s := NewServer(":0", reg, monitor, observability.NopLogger())
	return s, reg, monitor
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyzBeforeFirstPass(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyzAfterFirstPass(t *testing.T) {
	s, _, monitor := newTestServer(t)

	require.NoError(t, monitor.Start(context.Background()))
	defer monitor.Stop()

	select {
	case <-monitor.FirstPassDone():
	case <-time.After(3 * time.Second):
		t.Fatal("first pass never completed")
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/readyz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServices(t *testing.T) {
	s, reg, _ := newTestServer(t)

	require.NoError(t, reg.Register(config.ServiceConfig{
		ID:      "users",
		BaseURL: "http://users:8080",
	}))
	require.NoError(t, reg.SetHealth("users", registry.StateHealthy, time.Now(), 5*time.Millisecond, ""))

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/services", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Services []struct {
			ID      string `json:"id"`
			BaseURL string `json:"baseUrl"`
			State   string `json:"state"`
		} `json:"services"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body.Services, 1)
	assert.Equal(t, "users", body.Services[0].ID)
	assert.Equal(t, "healthy", body.Services[0].State)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
