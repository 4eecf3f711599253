package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/edgegate/internal/util"
)

const testSecret = "test-secret-for-gate"

func signToken(t *testing.T, secret string, mutate func(b *jwt.Builder)) string {
	t.Helper()

	b := jwt.NewBuilder().
		Subject("user-1").
		Claim("email", "user@example.com").
		Claim("role", "editor").
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour))
	if mutate != nil {
		mutate(b)
	}

	token, err := b.Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, []byte(secret)))
	require.NoError(t, err)
	return string(signed)
}

func newTestGate(t *testing.T, opts ...GateOption) *Gate {
	t.Helper()
	g, err := NewGate(testSecret, "HS256", opts...)
	require.NoError(t, err)
	return g
}

func TestNewGateRejectsEmptySecret(t *testing.T) {
	_, err := NewGate("", "HS256")
	require.Error(t, err)
	assert.True(t, errors.Is(err, util.ErrConfigInvalid))
}

func TestNewGateRejectsUnsupportedAlgorithm(t *testing.T) {
	_, err := NewGate("s", "RS256")
	assert.Error(t, err)
}

func TestAuthenticateValidToken(t *testing.T) {
	g := newTestGate(t)

	id, err := g.Authenticate("Bearer " + signToken(t, testSecret, nil))
	require.NoError(t, err)

	assert.Equal(t, "user-1", id.Subject)
	assert.Equal(t, "user@example.com", id.Email)
	assert.Equal(t, "editor", id.Role)
	assert.False(t, id.ExpiresAt.IsZero())
}

func TestAuthenticateMissingHeader(t *testing.T) {
	g := newTestGate(t)

	_, err := g.Authenticate("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoCredentials))
	assert.True(t, errors.Is(err, util.ErrUnauthenticated))
}

func TestAuthenticateNotBearer(t *testing.T) {
	g := newTestGate(t)

	_, err := g.Authenticate("Basic dXNlcjpwYXNz")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedToken))
}

func TestAuthenticateEmptyBearer(t *testing.T) {
	g := newTestGate(t)

	_, err := g.Authenticate("Bearer ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedToken))
}

func TestAuthenticateGarbageToken(t *testing.T) {
	g := newTestGate(t)

	_, err := g.Authenticate("Bearer not.a.jwt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenInvalid))
}

func TestAuthenticateWrongSecret(t *testing.T) {
	g := newTestGate(t)

	_, err := g.Authenticate("Bearer " + signToken(t, "other-secret", nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenInvalid))
}

func TestAuthenticateExpiredToken(t *testing.T) {
	g := newTestGate(t)

	expired := signToken(t, testSecret, func(b *jwt.Builder) {
		b.IssuedAt(time.Now().Add(-2 * time.Hour))
		b.Expiration(time.Now().Add(-time.Hour))
	})

	_, err := g.Authenticate("Bearer " + expired)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenExpired))
}

func TestAuthenticateSkewToleratesRecentExpiry(t *testing.T) {
	g := newTestGate(t, WithAcceptableSkew(time.Minute))

	justExpired := signToken(t, testSecret, func(b *jwt.Builder) {
		b.Expiration(time.Now().Add(-10 * time.Second))
	})

	_, err := g.Authenticate("Bearer " + justExpired)
	assert.NoError(t, err)
}

func TestAuthenticateSubjectFallback(t *testing.T) {
	g := newTestGate(t)

	token := signToken(t, testSecret, func(b *jwt.Builder) {
		b.Subject("")
		b.Claim("id", "fallback-id")
	})

	id, err := g.Authenticate("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "fallback-id", id.Subject)
}

func TestCheckRole(t *testing.T) {
	g := newTestGate(t)
	id := &Identity{Subject: "u", Role: "editor"}

	assert.NoError(t, g.CheckRole(id, nil))
	assert.NoError(t, g.CheckRole(id, []string{"admin", "editor"}))

	err := g.CheckRole(id, []string{"admin"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, util.ErrForbidden))
}

func TestHasAnyRole(t *testing.T) {
	id := &Identity{Role: "viewer"}

	assert.True(t, id.HasAnyRole(nil))
	assert.True(t, id.HasAnyRole([]string{"viewer"}))
	assert.False(t, id.HasAnyRole([]string{"admin"}))
}

func TestIdentityContext(t *testing.T) {
	id := &Identity{Subject: "u"}
	ctx := ContextWithIdentity(context.Background(), id)

	assert.Equal(t, id, IdentityFromContext(ctx))
	assert.Nil(t, IdentityFromContext(context.Background()))
}
