// Package admin serves the gateway's diagnostics listener: health,
// readiness, service inventory and Prometheus metrics.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/edgegate/internal/health"
	"github.com/vyrodovalexey/edgegate/internal/observability"
	"github.com/vyrodovalexey/edgegate/internal/registry"
)

// Server is the admin HTTP listener. It runs separately from the data
// plane so diagnostics stay reachable when the proxy is saturated.
type Server struct {
	addr     string
	registry *registry.Registry
	monitor  *health.Monitor
	logger   observability.Logger
	server   *http.Server
}

// serviceView is the JSON shape of one service in /services.
type serviceView struct {
	ID            string `json:"id"`
	BaseURL       string `json:"baseUrl"`
	State         string `json:"state"`
	LastCheckedAt string `json:"lastCheckedAt,omitempty"`
	LastLatencyMs int64  `json:"lastLatencyMs,omitempty"`
	LastError     string `json:"lastError,omitempty"`
}

// NewServer creates the admin server.
func NewServer(addr string, reg *registry.Registry, monitor *health.Monitor, logger observability.Logger) *Server {
	return &Server{
		addr:     addr,
		registry: reg,
		monitor:  monitor,
		logger:   logger,
	}
}

// Handler builds the admin route tree.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/readyz", s.handleReadyz)
	engine.GET("/services", s.handleServices)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return engine
}

// Start launches the admin listener.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info("admin listening", observability.String("addr", s.addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("admin listener failed", observability.Error(err))
		}
	}()

	return nil
}

// Stop shuts the admin listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleHealthz reports process liveness.
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleReadyz reports readiness. The gateway is ready once the initial
// health probe pass has completed.
func (s *Server) handleReadyz(c *gin.Context) {
	select {
	case <-s.monitor.FirstPassDone():
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "waiting for initial health pass"})
	}
}

// handleServices lists registered services with their health state.
func (s *Server) handleServices(c *gin.Context) {
	services := s.registry.ListAll()

	views := make([]serviceView, 0, len(services))
	for _, svc := range services {
		view := serviceView{
			ID:      svc.ID,
			BaseURL: svc.BaseURL.String(),
			State:   svc.State.String(),
		}
		if !svc.LastCheckedAt.IsZero() {
			view.LastCheckedAt = svc.LastCheckedAt.UTC().Format(time.RFC3339)
			view.LastLatencyMs = svc.LastLatency.Milliseconds()
		}
		view.LastError = svc.LastError
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{"services": views})
}
