// Package gateway assembles the edge gateway: registry, health monitor,
// auth gate, rate limiters, router and proxy behind one HTTP listener.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/vyrodovalexey/edgegate/internal/auth"
	"github.com/vyrodovalexey/edgegate/internal/config"
	"github.com/vyrodovalexey/edgegate/internal/gateway/admin"
	"github.com/vyrodovalexey/edgegate/internal/health"
	"github.com/vyrodovalexey/edgegate/internal/metrics"
	"github.com/vyrodovalexey/edgegate/internal/middleware"
	"github.com/vyrodovalexey/edgegate/internal/observability"
	"github.com/vyrodovalexey/edgegate/internal/proxy"
	"github.com/vyrodovalexey/edgegate/internal/ratelimit"
	"github.com/vyrodovalexey/edgegate/internal/ratelimit/store"
	"github.com/vyrodovalexey/edgegate/internal/registry"
	"github.com/vyrodovalexey/edgegate/internal/router"
)

// limiterCleanupInterval is how often idle limiter state is dropped.
const limiterCleanupInterval = time.Minute

// cleanable is implemented by limiters holding per-key in-memory state.
type cleanable interface {
	Cleanup(maxAge time.Duration)
}

// Gateway owns every component of the edge gateway and their lifecycles.
type Gateway struct {
	cfg        *config.Config
	logger     observability.Logger
	tracer     *observability.Tracer
	registry   *registry.Registry
	monitor    *health.Monitor
	gate       *auth.Gate
	dispatcher *proxy.Dispatcher
	store      store.Store
	metrics    *metrics.GatewayMetrics

	// Reloadable routing and rate limit state.
	mu          sync.RWMutex
	table       *router.Table
	limiters    map[string]ratelimit.Limiter
	exemptRoles map[string]struct{}

	server      *http.Server
	adminServer *admin.Server

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// New builds a gateway from validated configuration.
func New(cfg *config.Config, logger observability.Logger) (*Gateway, error) {
	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
	})
	if err != nil {
		return nil, err
	}

	reg := registry.New(registry.WithLogger(logger))
	for _, svc := range cfg.Services {
		if err := reg.Register(svc); err != nil {
			return nil, err
		}
	}

	gate, err := auth.NewGate(cfg.JWT.Secret, cfg.JWT.Algorithm,
		auth.WithGateLogger(logger),
		auth.WithAcceptableSkew(cfg.JWT.AcceptableSkew.Std()),
	)
	if err != nil {
		return nil, err
	}

	var limitStore store.Store
	if cfg.RateLimit.Redis.Enabled {
		limitStore, err = store.NewRedisStore(context.Background(), store.RedisOptions{
			Addr:     cfg.RateLimit.Redis.Addr,
			Password: cfg.RateLimit.Redis.Password,
			DB:       cfg.RateLimit.Redis.DB,
			Prefix:   cfg.RateLimit.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
	}

	g := &Gateway{
		cfg:      cfg,
		logger:   logger,
		tracer:   tracer,
		registry: reg,
		monitor: health.NewMonitor(reg,
			cfg.HealthCheck.Interval.Std(),
			cfg.HealthCheck.Timeout.Std(),
			cfg.HealthCheck.UnhealthyThreshold,
			health.WithLogger(logger),
		),
		gate:       gate,
		dispatcher: proxy.NewDispatcher(reg, proxy.WithLogger(logger)),
		store:      limitStore,
		metrics:    metrics.Get(),
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}

	if err := g.applyRoutingConfig(cfg); err != nil {
		return nil, err
	}

	g.adminServer = admin.NewServer(cfg.AdminListen, reg, g.monitor, logger)

	return g, nil
}

// applyRoutingConfig swaps in the route table, rate limiters and role
// exemptions from cfg. Called at startup and on configuration reload.
func (g *Gateway) applyRoutingConfig(cfg *config.Config) error {
	limiters := make(map[string]ratelimit.Limiter, len(cfg.RateLimit.Tiers))
	for class, tier := range cfg.RateLimit.Tiers {
		limiter, err := ratelimit.New(ratelimit.Config{
			Algorithm: ratelimit.Algorithm(tier.Algorithm),
			Requests:  tier.Max,
			Window:    tier.Window.Std(),
		}, g.store, g.logger)
		if err != nil {
			return err
		}
		limiters[class] = limiter
	}

	exempt := make(map[string]struct{}, len(cfg.RateLimit.ExemptRoles))
	for _, role := range cfg.RateLimit.ExemptRoles {
		exempt[role] = struct{}{}
	}

	table := router.NewTable(cfg.Routes)

	g.mu.Lock()
	g.table = table
	g.limiters = limiters
	g.exemptRoles = exempt
	g.mu.Unlock()

	return nil
}

// Reload applies a freshly loaded configuration. Only routing and rate
// limit state is hot-swapped; listeners, services and credentials keep
// their boot-time values.
func (g *Gateway) Reload(cfg *config.Config) {
	if err := g.applyRoutingConfig(cfg); err != nil {
		g.logger.Error("failed to apply reloaded configuration", observability.Error(err))
		return
	}
	g.logger.Info("routing configuration reloaded",
		observability.Int("routes", len(cfg.Routes)),
		observability.Int("tiers", len(cfg.RateLimit.Tiers)),
	)
}

// Handler returns the full middleware chain around the pipeline.
func (g *Gateway) Handler() http.Handler {
	var h http.Handler = http.HandlerFunc(g.serve)
	h = middleware.Recovery(g.logger)(h)
	h = middleware.Logging(g.logger)(h)
	if g.cfg.Tracing.Enabled {
		h = observability.TracingMiddleware(g.tracer)(h)
	}
	h = middleware.RequestID()(h)
	return h
}

// Start launches the health monitor, the admin listener and the main
// listener. It returns once the listeners are running.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.monitor.Start(ctx); err != nil {
		return err
	}

	g.server = &http.Server{
		Addr:              g.cfg.Listen,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go g.janitor()

	if err := g.adminServer.Start(); err != nil {
		return err
	}

	go func() {
		g.logger.Info("gateway listening", observability.String("addr", g.cfg.Listen))
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.logger.Error("gateway listener failed", observability.Error(err))
		}
	}()

	return nil
}

// Stop drains in-flight requests within the configured grace period, then
// shuts everything down.
func (g *Gateway) Stop(ctx context.Context) error {
	close(g.stopCh)

	drainCtx, cancel := context.WithTimeout(ctx, g.cfg.ShutdownGrace.Std())
	defer cancel()

	var firstErr error
	if g.server != nil {
		if err := g.server.Shutdown(drainCtx); err != nil {
			firstErr = err
		}
	}
	if err := g.adminServer.Stop(drainCtx); err != nil && firstErr == nil {
		firstErr = err
	}

	g.monitor.Stop()

	if g.store != nil {
		if err := g.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := g.tracer.Shutdown(drainCtx); err != nil && firstErr == nil {
		firstErr = err
	}

	if g.server != nil {
		<-g.stoppedCh
	}
	return firstErr
}

// janitor periodically drops idle in-memory limiter state.
func (g *Gateway) janitor() {
	defer close(g.stoppedCh)

	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.mu.RLock()
			limiters := make([]ratelimit.Limiter, 0, len(g.limiters))
			for _, l := range g.limiters {
				limiters = append(limiters, l)
			}
			g.mu.RUnlock()

			for _, l := range limiters {
				if c, ok := l.(cleanable); ok {
					c.Cleanup(10 * limiterCleanupInterval)
				}
			}
		}
	}
}

// Registry exposes the service registry, used by the admin endpoints.
func (g *Gateway) Registry() *registry.Registry {
	return g.registry
}
