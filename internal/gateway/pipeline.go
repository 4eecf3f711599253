package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/vyrodovalexey/edgegate/internal/auth"
	"github.com/vyrodovalexey/edgegate/internal/observability"
	"github.com/vyrodovalexey/edgegate/internal/ratelimit"
	"github.com/vyrodovalexey/edgegate/internal/router"
	"github.com/vyrodovalexey/edgegate/internal/util"
)

// serve runs the per-request pipeline: route match, authentication, role
// check, rate limiting, then upstream dispatch. Order matters; a request
// that fails an earlier stage never reaches a later one.
func (g *Gateway) serve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	g.mu.RLock()
	table := g.table
	g.mu.RUnlock()

	route, err := table.Match(r.Method, r.URL.Path)
	if err != nil {
		util.WriteErrorEnvelope(w, r, http.StatusNotFound,
			util.CodeResourceNotFound, "no route matches "+r.URL.Path, nil)
		g.metrics.RecordRequest("", r.Method, strconv.Itoa(http.StatusNotFound), time.Since(start))
		return
	}

	ctx := util.ContextWithRouteClass(r.Context(), route.Class)
	ctx = util.ContextWithService(ctx, route.Service)
	r = r.WithContext(ctx)

	identity, ok := g.authenticate(w, r, route)
	if !ok {
		g.metrics.RecordRequest(route.Service, r.Method, "401", time.Since(start))
		return
	}
	if identity != nil {
		if err := g.gate.CheckRole(identity, route.AllowedRoles); err != nil {
			g.metrics.AuthFailures.WithLabelValues("role").Inc()
			util.WriteErrorEnvelope(w, r, http.StatusForbidden,
				util.CodeAuthorizationError, "role is not allowed to access this resource", nil)
			g.metrics.RecordRequest(route.Service, r.Method, "403", time.Since(start))
			return
		}
		r = r.WithContext(auth.ContextWithIdentity(r.Context(), identity))
	}

	if !g.admit(w, r, route, identity) {
		g.metrics.RecordRequest(route.Service, r.Method, "429", time.Since(start))
		return
	}

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	g.dispatcher.Dispatch(rec, r, route.Service)
	g.metrics.RecordRequest(route.Service, r.Method, strconv.Itoa(rec.status), time.Since(start))
}

// authenticate verifies credentials for protected routes. It returns the
// identity (nil for public routes without credentials) and whether the
// request may proceed.
func (g *Gateway) authenticate(w http.ResponseWriter, r *http.Request, route *router.Route) (*auth.Identity, bool) {
	authorization := r.Header.Get("Authorization")

	if !route.AuthRequired {
		// Public routes still resolve an identity when one is presented,
		// so rate limit keys and forwarded headers can use it.
		if authorization == "" {
			return nil, true
		}
		identity, err := g.gate.Authenticate(authorization)
		if err != nil {
			return nil, true
		}
		return identity, true
	}

	identity, err := g.gate.Authenticate(authorization)
	if err != nil {
		reason := "invalid"
		switch {
		case errors.Is(err, auth.ErrNoCredentials):
			reason = "missing"
		case errors.Is(err, auth.ErrTokenExpired):
			reason = "expired"
		case errors.Is(err, auth.ErrMalformedToken):
			reason = "malformed"
		}
		g.metrics.AuthFailures.WithLabelValues(reason).Inc()
		g.logger.WithContext(r.Context()).Info("authentication failed",
			observability.String("reason", reason),
			observability.String("path", r.URL.Path),
		)
		util.WriteErrorEnvelope(w, r, http.StatusUnauthorized,
			util.CodeAuthenticationError, "authentication required", nil)
		return nil, false
	}
	return identity, true
}

// admit runs the rate limiter for the route's class. Exempt roles bypass
// limiting entirely.
func (g *Gateway) admit(w http.ResponseWriter, r *http.Request, route *router.Route, identity *auth.Identity) bool {
	g.mu.RLock()
	limiter := g.limiters[route.Class]
	exempt := false
	if identity != nil {
		_, exempt = g.exemptRoles[identity.Role]
	}
	g.mu.RUnlock()

	if limiter == nil || exempt {
		return true
	}

	subject := ""
	if identity != nil {
		subject = identity.Subject
	}
	key := ratelimit.BuildKey(route.Class, ratelimit.ClientIP(r), subject)

	result, err := limiter.Allow(r.Context(), key)
	if err != nil {
		// A broken limiter store must not take the data plane down with
		// it; admit and log.
		g.logger.WithContext(r.Context()).Error("rate limiter check failed",
			observability.String("class", route.Class),
			observability.Error(err),
		)
		return true
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

	if result.Allowed {
		g.metrics.RateLimitDecisions.WithLabelValues(route.Class, "allowed").Inc()
		return true
	}

	g.metrics.RateLimitDecisions.WithLabelValues(route.Class, "rejected").Inc()

	rlErr := util.NewRateLimitError(result.Limit, result.RetryAfter)
	retrySeconds := rlErr.RetryAfterSeconds()
	w.Header().Set("Retry-After", strconv.Itoa(retrySeconds))

	util.WriteErrorEnvelope(w, r, http.StatusTooManyRequests,
		util.CodeRateLimitExceeded, "rate limit exceeded",
		map[string]any{"retryAfterSeconds": retrySeconds})
	return false
}

// statusRecorder captures the status written by the dispatcher.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for streaming responses.
func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
