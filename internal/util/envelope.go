package util

import (
	"encoding/json"
	"net/http"
	"time"
)

// Error codes returned in the gateway error envelope. Clients branch on
// these, so they are part of the public contract and must stay stable.
const (
	CodeAuthenticationError = "AUTHENTICATION_ERROR"
	CodeAuthorizationError  = "AUTHORIZATION_ERROR"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeResourceNotFound    = "RESOURCE_NOT_FOUND"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInternalError       = "INTERNAL_ERROR"
)

// ErrorBody is the error portion of the gateway error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope is the uniform body for all gateway-generated error
// responses. Upstream error bodies are relayed verbatim and never wrapped.
type ErrorEnvelope struct {
	Success   bool      `json:"success"`
	Error     ErrorBody `json:"error"`
	Timestamp string    `json:"timestamp"`
	RequestID string    `json:"requestId"`
}

// WriteErrorEnvelope writes the uniform gateway error envelope. The request
// id is taken from the request context; callers must have run the request-id
// middleware first.
func WriteErrorEnvelope(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	env := ErrorEnvelope{
		Success: false,
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: RequestIDFromContext(r.Context()),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
