// Package registry maintains the set of known upstream services and their
// current health state.
package registry

import (
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/vyrodovalexey/edgegate/internal/config"
	"github.com/vyrodovalexey/edgegate/internal/observability"
	"github.com/vyrodovalexey/edgegate/internal/util"
)

// HealthState is the gateway's view of an upstream service.
type HealthState int

// Health states. Every service starts Unknown until the first probe
// completes.
const (
	StateUnknown HealthState = iota
	StateHealthy
	StateUnhealthy
)

// String returns the lowercase name of the state.
func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Service describes one registered upstream service together with its
// last observed health.
type Service struct {
	ID             string
	BaseURL        *url.URL
	HealthPath     string
	Timeout        time.Duration
	FailFast       bool
	CircuitBreaker config.CircuitBreakerConfig

	State         HealthState
	LastCheckedAt time.Time
	LastLatency   time.Duration
	LastError     string
}

// Registry is a concurrency-safe service registry. Reads vastly outnumber
// writes, so it uses a single RWMutex over a map.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*Service
	logger   observability.Logger
}

// Option is a functional option for configuring the registry.
type Option func(*Registry)

// WithLogger sets the logger for the registry.
func WithLogger(logger observability.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		services: make(map[string]*Service),
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a service. Registering the same id with the same base URL
// is idempotent; the same id with a different base URL is a configuration
// conflict.
func (r *Registry) Register(cfg config.ServiceConfig) error {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return util.NewConfigError("services."+cfg.ID+".base_url", "invalid base url", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.services[cfg.ID]; ok {
		if existing.BaseURL.String() == base.String() {
			return nil
		}
		return util.NewConfigError("services."+cfg.ID, "service already registered with a different base url", nil)
	}

	r.services[cfg.ID] = &Service{
		ID:             cfg.ID,
		BaseURL:        base,
		HealthPath:     cfg.HealthPath,
		Timeout:        cfg.Timeout.Std(),
		FailFast:       cfg.FailFast,
		CircuitBreaker: cfg.CircuitBreaker,
		State:          StateUnknown,
	}

	r.logger.Info("service registered",
		observability.String("service", cfg.ID),
		observability.String("base_url", base.String()),
	)

	return nil
}

// Get returns a copy of the service with the given id. Callers get a
// snapshot, never a pointer into the registry.
func (r *Registry) Get(id string) (Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[id]
	if !ok {
		return Service{}, util.NewServiceNotFoundError(id)
	}
	return *svc, nil
}

// SetHealth records the outcome of a health probe. Stale results are
// discarded so that a slow probe cannot overwrite a newer observation.
func (r *Registry) SetHealth(id string, state HealthState, checkedAt time.Time, latency time.Duration, probeErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	svc, ok := r.services[id]
	if !ok {
		return util.NewServiceNotFoundError(id)
	}

	if checkedAt.Before(svc.LastCheckedAt) {
		return nil
	}

	svc.State = state
	svc.LastCheckedAt = checkedAt
	svc.LastLatency = latency
	svc.LastError = probeErr

	return nil
}

// SetProbeResult records probe metadata without changing the health state.
// Used for failures that have not yet crossed the unhealthy threshold, so
// the descriptor always reflects the most recent probe.
func (r *Registry) SetProbeResult(id string, checkedAt time.Time, latency time.Duration, probeErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	svc, ok := r.services[id]
	if !ok {
		return util.NewServiceNotFoundError(id)
	}

	if checkedAt.Before(svc.LastCheckedAt) {
		return nil
	}

	svc.LastCheckedAt = checkedAt
	svc.LastLatency = latency
	svc.LastError = probeErr

	return nil
}

// ListAll returns a snapshot of every registered service sorted by id.
func (r *Registry) ListAll() []Service {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Service, 0, len(r.services))
	for _, svc := range r.services {
		out = append(out, *svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}
