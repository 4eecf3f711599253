package proxy

import (
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/edgegate/internal/observability"
	"github.com/vyrodovalexey/edgegate/internal/registry"
)

// breakerSet holds one circuit breaker per opted-in service.
type breakerSet struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   observability.Logger
}

func newBreakerSet(logger observability.Logger) *breakerSet {
	return &breakerSet{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
	}
}

// transport wraps base with the service's circuit breaker.
func (s *breakerSet) transport(svc registry.Service, base http.RoundTripper) http.RoundTripper {
	s.mu.Lock()
	cb, ok := s.breakers[svc.ID]
	if !ok {
		maxFailures := svc.CircuitBreaker.MaxFailures
		if maxFailures == 0 {
			maxFailures = 5
		}
		openTimeout := svc.CircuitBreaker.OpenTimeout.Std()
		if openTimeout == 0 {
			openTimeout = 30 * time.Second
		}

		logger := s.logger
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    svc.ID,
			Timeout: openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					observability.String("service", name),
					observability.String("from", from.String()),
					observability.String("to", to.String()),
				)
			},
		})
		s.breakers[svc.ID] = cb
	}
	s.mu.Unlock()

	return &breakerTransport{base: base, cb: cb}
}

// breakerTransport runs round trips through a circuit breaker. Responses
// with 5xx status count as failures so a broken upstream trips the breaker
// even when connections succeed.
type breakerTransport struct {
	base http.RoundTripper
	cb   *gobreaker.CircuitBreaker
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	result, err := t.cb.Execute(func() (interface{}, error) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errUpstreamStatus
		}
		return resp, nil
	})
	if err != nil && result == nil {
		return nil, err
	}
	// A 5xx response trips the breaker but is still relayed to the client.
	return result.(*http.Response), nil
}

// errUpstreamStatus marks 5xx responses as breaker failures.
var errUpstreamStatus = &upstreamStatusError{}

type upstreamStatusError struct{}

func (e *upstreamStatusError) Error() string { return "upstream returned server error" }
