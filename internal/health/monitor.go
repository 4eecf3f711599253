// Package health runs periodic background probes against registered
// services and feeds the results into the registry.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vyrodovalexey/edgegate/internal/metrics"
	"github.com/vyrodovalexey/edgegate/internal/observability"
	"github.com/vyrodovalexey/edgegate/internal/registry"
)

// Monitor probes every registered service on a fixed interval. All probes
// within a tick run concurrently, each with its own timeout, so one slow
// upstream cannot delay the others.
type Monitor struct {
	registry  *registry.Registry
	client    *http.Client
	interval  time.Duration
	timeout   time.Duration
	threshold int
	logger    observability.Logger
	metrics   *metrics.GatewayMetrics

	mu       sync.Mutex
	failures map[string]int
	running  bool

	firstPassOnce sync.Once
	firstPassCh   chan struct{}
	stopCh        chan struct{}
	stoppedCh     chan struct{}
}

// Option is a functional option for configuring the monitor.
type Option func(*Monitor)

// WithLogger sets the logger for the monitor.
func WithLogger(logger observability.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithHTTPClient overrides the probe HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Monitor) {
		m.client = client
	}
}

// NewMonitor creates a health monitor. A service is marked unhealthy only
// after threshold consecutive probe failures; a single success marks it
// healthy again.
func NewMonitor(reg *registry.Registry, interval, timeout time.Duration, threshold int, opts ...Option) *Monitor {
	if threshold < 1 {
		threshold = 1
	}
	m := &Monitor{
		registry:  reg,
		client:    &http.Client{},
		interval:  interval,
		timeout:   timeout,
		threshold: threshold,
		logger:    observability.NopLogger(),
		metrics:   metrics.Get(),
		failures:  make(map[string]int),

		firstPassCh: make(chan struct{}),
		stopCh:      make(chan struct{}),
		stoppedCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the probe loop. The first pass runs immediately rather
// than waiting for the first tick, so routing decisions have real health
// data as soon as possible.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.mu.Unlock()

	go m.run(ctx)
	return nil
}

// Stop stops the probe loop and waits for in-flight probes to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	<-m.stoppedCh
}

// FirstPassDone returns a channel closed once the initial probe pass has
// completed. Readiness checks block on it.
func (m *Monitor) FirstPassDone() <-chan struct{} {
	return m.firstPassCh
}

// run is the probe loop.
func (m *Monitor) run(ctx context.Context) {
	defer close(m.stoppedCh)

	m.probeAll(ctx)
	m.firstPassOnce.Do(func() { close(m.firstPassCh) })

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("health monitor stopped due to context cancellation")
			return
		case <-m.stopCh:
			m.logger.Info("health monitor stopped")
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

// probeAll probes every registered service concurrently and waits for all
// probes to complete.
func (m *Monitor) probeAll(ctx context.Context) {
	services := m.registry.ListAll()

	var wg sync.WaitGroup
	for _, svc := range services {
		wg.Add(1)
		go func(svc registry.Service) {
			defer wg.Done()
			m.probe(ctx, svc)
		}(svc)
	}
	wg.Wait()
}

// probe issues a single health probe and records the result.
func (m *Monitor) probe(ctx context.Context, svc registry.Service) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	target := svc.BaseURL.JoinPath(svc.HealthPath)
	start := time.Now()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		m.recordFailure(svc.ID, start, time.Since(start), err.Error())
		return
	}

	resp, err := m.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		m.recordFailure(svc.ID, start, latency, err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		m.recordSuccess(svc.ID, start, latency)
		return
	}
	m.recordFailure(svc.ID, start, latency, fmt.Sprintf("unexpected status %d", resp.StatusCode))
}

// recordSuccess marks the service healthy and resets its failure count.
func (m *Monitor) recordSuccess(id string, checkedAt time.Time, latency time.Duration) {
	m.mu.Lock()
	m.failures[id] = 0
	m.mu.Unlock()

	if err := m.registry.SetHealth(id, registry.StateHealthy, checkedAt, latency, ""); err != nil {
		m.logger.Warn("failed to record probe result",
			observability.String("service", id),
			observability.Error(err),
		)
		return
	}

	m.metrics.RecordProbe(id, "success", latency)
	m.metrics.ServiceHealthy.WithLabelValues(id).Set(1)
}

// recordFailure increments the failure count and marks the service
// unhealthy once the threshold is reached.
func (m *Monitor) recordFailure(id string, checkedAt time.Time, latency time.Duration, reason string) {
	m.mu.Lock()
	m.failures[id]++
	count := m.failures[id]
	m.mu.Unlock()

	m.logger.Warn("health probe failed",
		observability.String("service", id),
		observability.Int("consecutive_failures", count),
		observability.String("reason", reason),
	)

	m.metrics.RecordProbe(id, "failure", latency)

	if count < m.threshold {
		// Below the threshold the state stays put, but the descriptor still
		// records when the probe ran and what went wrong.
		if err := m.registry.SetProbeResult(id, checkedAt, latency, reason); err != nil {
			m.logger.Warn("failed to record probe result",
				observability.String("service", id),
				observability.Error(err),
			)
		}
		return
	}

	if err := m.registry.SetHealth(id, registry.StateUnhealthy, checkedAt, latency, reason); err != nil {
		m.logger.Warn("failed to record probe result",
			observability.String("service", id),
			observability.Error(err),
		)
		return
	}
	m.metrics.ServiceHealthy.WithLabelValues(id).Set(0)
}
