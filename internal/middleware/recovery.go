package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/vyrodovalexey/edgegate/internal/metrics"
	"github.com/vyrodovalexey/edgegate/internal/observability"
	"github.com/vyrodovalexey/edgegate/internal/util"
)

// Recovery converts panics into a 500 envelope so a single bad request
// cannot take the gateway down.
func Recovery(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.WithContext(r.Context()).Error("panic recovered",
						observability.Any("panic", rec),
						observability.String("path", r.URL.Path),
						observability.String("stack", string(debug.Stack())),
					)
					metrics.Get().PanicsRecovered.Inc()

					util.WriteErrorEnvelope(w, r, http.StatusInternalServerError,
						util.CodeInternalError, "internal server error", nil)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
