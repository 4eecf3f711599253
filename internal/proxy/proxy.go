// Package proxy dispatches matched requests to upstream services over a
// streaming reverse proxy.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/edgegate/internal/auth"
	"github.com/vyrodovalexey/edgegate/internal/metrics"
	"github.com/vyrodovalexey/edgegate/internal/observability"
	"github.com/vyrodovalexey/edgegate/internal/registry"
	"github.com/vyrodovalexey/edgegate/internal/util"
)

// gatewayName identifies this gateway in forwarded and response headers.
const gatewayName = "edgegate"

// hopHeaders are headers that should not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Dispatcher forwards requests to registered upstream services. Responses
// are streamed through, never buffered, and upstream bodies are relayed
// verbatim whatever their status code.
type Dispatcher struct {
	registry  *registry.Registry
	transport http.RoundTripper
	logger    observability.Logger
	metrics   *metrics.GatewayMetrics
	breakers  *breakerSet
}

// Option is a functional option for configuring the dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger for the dispatcher.
func WithLogger(logger observability.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithTransport overrides the upstream transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(d *Dispatcher) {
		d.transport = transport
	}
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(reg *registry.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:  reg,
		transport: http.DefaultTransport,
		logger:    observability.NopLogger(),
		metrics:   metrics.Get(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.breakers = newBreakerSet(d.logger)
	return d
}

// Dispatch forwards the request to the named service. Unhealthy upstreams
// are still attempted unless the service opts into fail-fast; health data
// can be stale and the request itself is the freshest probe.
func (d *Dispatcher) Dispatch(w http.ResponseWriter, r *http.Request, serviceID string) {
	svc, err := d.registry.Get(serviceID)
	if err != nil {
		d.writeDispatchError(w, r, serviceID, err)
		return
	}

	if svc.FailFast && svc.State == registry.StateUnhealthy {
		d.metrics.UpstreamErrors.WithLabelValues(serviceID, "fail_fast").Inc()
		util.WriteErrorEnvelope(w, r, http.StatusServiceUnavailable,
			util.CodeServiceUnavailable, "service "+serviceID+" is unhealthy", nil)
		return
	}

	transport := d.transport
	if svc.CircuitBreaker.Enabled {
		transport = d.breakers.transport(svc, d.transport)
	}

	rp := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			d.director(req, svc.BaseURL, r)
		},
		Transport: transport,
		// Flush every write so streaming responses are piped through.
		FlushInterval: -1,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			d.handleUpstreamError(w, r, serviceID, err)
		},
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Set("X-Forwarded-By", gatewayName)
			if reqID := util.RequestIDFromContext(r.Context()); reqID != "" {
				resp.Header.Set("X-Request-Id", reqID)
			}
			return nil
		},
	}

	ctx := r.Context()
	if svc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, svc.Timeout)
		defer cancel()
	}

	d.metrics.ActiveRequests.Inc()
	defer d.metrics.ActiveRequests.Dec()

	rp.ServeHTTP(w, r.WithContext(ctx))
}

// director rewrites the outgoing request for the upstream target.
func (d *Dispatcher) director(req *http.Request, target *url.URL, original *http.Request) {
	req.URL.Scheme = target.Scheme
	req.URL.Host = target.Host
	req.URL.Path = singleJoin(target.Path, original.URL.Path)
	req.URL.RawQuery = original.URL.RawQuery
	req.Host = target.Host

	for _, h := range hopHeaders {
		req.Header.Del(h)
	}

	// X-Forwarded-For is appended by httputil.ReverseProxy itself.
	if original.TLS != nil {
		req.Header.Set("X-Forwarded-Proto", "https")
	} else {
		req.Header.Set("X-Forwarded-Proto", "http")
	}
	req.Header.Set("X-Forwarded-Host", original.Host)
	req.Header.Set("X-Forwarded-By", gatewayName)
	req.Header.Set("X-Gateway-Timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))

	if reqID := util.RequestIDFromContext(original.Context()); reqID != "" {
		req.Header.Set("X-Request-Id", reqID)
	}
	if id := auth.IdentityFromContext(original.Context()); id != nil {
		req.Header.Set("X-User-Id", id.Subject)
		if id.Role != "" {
			req.Header.Set("X-User-Role", id.Role)
		}
	}

	observability.InjectTraceContext(original.Context(), req)
}

// wrapUpstreamError lifts a raw transport failure into the gateway error
// taxonomy so logs and callers can classify it with errors.Is.
func wrapUpstreamError(serviceID string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return util.NewUpstreamError(serviceID, true, err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("service %s: %w: %w", serviceID, util.ErrCircuitOpen, err)
	default:
		return util.NewUpstreamError(serviceID, false, err)
	}
}

// handleUpstreamError maps transport failures to the gateway envelope.
// Requests are never retried; the caller decides whether to try again.
func (d *Dispatcher) handleUpstreamError(w http.ResponseWriter, r *http.Request, serviceID string, err error) {
	wrapped := wrapUpstreamError(serviceID, err)

	var status int
	var message string
	var reason string

	switch {
	case errors.Is(wrapped, context.Canceled):
		// Client went away; nothing useful can be written, but the
		// envelope keeps logs and metrics consistent.
		status = statusClientClosedRequest
		message = "request canceled"
		reason = "canceled"
	case errors.Is(wrapped, util.ErrTimeout):
		status = http.StatusGatewayTimeout
		message = "upstream request timed out"
		reason = "timeout"
	case errors.Is(wrapped, util.ErrCircuitOpen):
		status = http.StatusServiceUnavailable
		message = "service " + serviceID + " is temporarily unavailable"
		reason = "circuit_open"
	default:
		status = http.StatusBadGateway
		message = "failed to reach service " + serviceID
		reason = "connect"
	}

	d.logger.WithContext(r.Context()).Error("upstream dispatch failed",
		observability.String("reason", reason),
		observability.Error(wrapped),
	)
	d.metrics.UpstreamErrors.WithLabelValues(serviceID, reason).Inc()

	util.WriteErrorEnvelope(w, r, status, util.CodeServiceUnavailable, message, nil)
}

// writeDispatchError handles pre-dispatch failures such as unknown services.
func (d *Dispatcher) writeDispatchError(w http.ResponseWriter, r *http.Request, serviceID string, err error) {
	d.logger.WithContext(r.Context()).Error("dispatch failed",
		observability.Error(util.WrapError(err, "resolving service "+serviceID)),
	)
	d.metrics.UpstreamErrors.WithLabelValues(serviceID, "unknown_service").Inc()
	util.WriteErrorEnvelope(w, r, http.StatusBadGateway,
		util.CodeServiceUnavailable, "service "+serviceID+" is not available", nil)
}

// statusClientClosedRequest is the nginx convention for client-aborted
// requests.
const statusClientClosedRequest = 499

// singleJoin joins two path segments with exactly one slash.
func singleJoin(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	aslash := a[len(a)-1] == '/'
	bslash := b[0] == '/'
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
