// Package middleware provides the generic HTTP middleware chain that wraps
// the gateway pipeline.
package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/edgegate/internal/util"
)

// RequestIDHeader is the header carrying the request correlation id.
const RequestIDHeader = "X-Request-Id"

// RequestID assigns every request a correlation id, honoring one supplied
// by the client, and echoes it on the response.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := util.ContextWithRequestID(r.Context(), requestID)
			ctx = util.ContextWithStartTime(ctx, time.Now())

			w.Header().Set(RequestIDHeader, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
