package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/edgegate/internal/observability"
	"github.com/vyrodovalexey/edgegate/internal/util"
)

const bearerPrefix = "Bearer "

// Gate verifies bearer tokens and extracts caller identity. It is safe for
// concurrent use.
type Gate struct {
	secret []byte
	alg    jwa.SignatureAlgorithm
	skew   time.Duration
	logger observability.Logger
}

// GateOption is a functional option for configuring the gate.
type GateOption func(*Gate)

// WithGateLogger sets the logger for the gate.
func WithGateLogger(logger observability.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithAcceptableSkew sets the clock skew tolerated when validating time
// claims.
func WithAcceptableSkew(skew time.Duration) GateOption {
	return func(g *Gate) {
		g.skew = skew
	}
}

// NewGate creates a token gate. The algorithm name must be one of the HMAC
// family; anything else fails at construction rather than per request.
func NewGate(secret, algorithm string, opts ...GateOption) (*Gate, error) {
	if secret == "" {
		return nil, util.NewConfigError("jwt.secret", "secret must not be empty", nil)
	}

	var alg jwa.SignatureAlgorithm
	switch algorithm {
	case "", "HS256":
		alg = jwa.HS256
	case "HS384":
		alg = jwa.HS384
	case "HS512":
		alg = jwa.HS512
	default:
		return nil, util.NewConfigError("jwt.algorithm", "unsupported algorithm "+algorithm, nil)
	}

	g := &Gate{
		secret: []byte(secret),
		alg:    alg,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Authenticate verifies the Authorization header and returns the caller
// identity. All failures wrap an AuthenticationError so callers map them to
// a single 401 response.
func (g *Gate) Authenticate(authorization string) (*Identity, error) {
	if authorization == "" {
		return nil, util.NewAuthenticationError("missing authorization header", ErrNoCredentials)
	}
	if !strings.HasPrefix(authorization, bearerPrefix) {
		return nil, util.NewAuthenticationError("authorization header is not a bearer token", ErrMalformedToken)
	}

	raw := strings.TrimSpace(strings.TrimPrefix(authorization, bearerPrefix))
	if raw == "" {
		return nil, util.NewAuthenticationError("empty bearer token", ErrMalformedToken)
	}

	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(g.alg, g.secret),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(g.skew),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return nil, util.NewAuthenticationError("token expired", ErrTokenExpired)
		}
		g.logger.Debug("token verification failed", observability.Error(err))
		return nil, util.NewAuthenticationError("token verification failed", ErrTokenInvalid)
	}

	id := &Identity{
		Subject:   token.Subject(),
		IssuedAt:  token.IssuedAt(),
		ExpiresAt: token.Expiration(),
	}
	if id.Subject == "" {
		if v, ok := token.Get("id"); ok {
			if s, ok := v.(string); ok {
				id.Subject = s
			}
		}
	}
	if v, ok := token.Get("email"); ok {
		if s, ok := v.(string); ok {
			id.Email = s
		}
	}
	if v, ok := token.Get("role"); ok {
		if s, ok := v.(string); ok {
			id.Role = s
		}
	}

	return id, nil
}

// CheckRole enforces the route's allowed roles against an authenticated
// identity.
func (g *Gate) CheckRole(id *Identity, allowed []string) error {
	if id.HasAnyRole(allowed) {
		return nil
	}
	return util.NewAuthorizationError(id.Role, allowed)
}
