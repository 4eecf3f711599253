package auth

import "errors"

// Authentication failure reasons. All of them surface to clients as the
// same 401 envelope; the distinction is for logs and metrics only.
var (
	ErrNoCredentials  = errors.New("no credentials provided")
	ErrMalformedToken = errors.New("malformed authorization header")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("token invalid")
)
