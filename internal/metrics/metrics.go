// Package metrics provides Prometheus collectors for the gateway.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GatewayMetrics holds all gateway-level Prometheus collectors.
type GatewayMetrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	ActiveRequests     prometheus.Gauge
	UpstreamErrors     *prometheus.CounterVec
	RateLimitDecisions *prometheus.CounterVec
	AuthFailures       *prometheus.CounterVec
	ProbesTotal        *prometheus.CounterVec
	ProbeDuration      *prometheus.HistogramVec
	ServiceHealthy     *prometheus.GaugeVec
	PanicsRecovered    prometheus.Counter
}

var (
	gatewayMetrics *GatewayMetrics
	metricsOnce    sync.Once
)

// Get returns the process-wide gateway metrics, registering the collectors
// on first use.
func Get() *GatewayMetrics {
	metricsOnce.Do(func() {
		gatewayMetrics = &GatewayMetrics{
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gateway_requests_total",
					Help: "Total number of requests handled by the gateway",
				},
				[]string{"service", "method", "status"},
			),
			RequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "gateway_request_duration_seconds",
					Help:    "Duration of gateway request handling in seconds",
					Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
				},
				[]string{"service", "method"},
			),
			ActiveRequests: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "gateway_active_requests",
					Help: "Number of requests currently being proxied",
				},
			),
			UpstreamErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gateway_upstream_errors_total",
					Help: "Total number of upstream dispatch failures",
				},
				[]string{"service", "reason"},
			),
			RateLimitDecisions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gateway_ratelimit_decisions_total",
					Help: "Total number of rate limit admissions and rejections",
				},
				[]string{"class", "decision"},
			),
			AuthFailures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gateway_auth_failures_total",
					Help: "Total number of authentication and authorization failures",
				},
				[]string{"reason"},
			),
			ProbesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gateway_health_probes_total",
					Help: "Total number of health probes issued",
				},
				[]string{"service", "result"},
			),
			ProbeDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "gateway_health_probe_duration_seconds",
					Help:    "Duration of health probes in seconds",
					Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
				},
				[]string{"service"},
			),
			ServiceHealthy: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "gateway_service_healthy",
					Help: "Current health state of a registered service (1=healthy, 0=unhealthy)",
				},
				[]string{"service"},
			),
			PanicsRecovered: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "gateway_panics_recovered_total",
					Help: "Total number of panics recovered during request handling",
				},
			),
		}
	})
	return gatewayMetrics
}

// RecordRequest records a completed request.
func (m *GatewayMetrics) RecordRequest(service, method, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, status).Inc()
	m.RequestDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// RecordProbe records the outcome of a single health probe.
func (m *GatewayMetrics) RecordProbe(service, result string, duration time.Duration) {
	m.ProbesTotal.WithLabelValues(service, result).Inc()
	m.ProbeDuration.WithLabelValues(service).Observe(duration.Seconds())
}
