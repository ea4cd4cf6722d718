package middleware

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	logpkg "github.com/kevinmaint/maint-api/internal/logger"
	"github.com/kevinmaint/maint-api/internal/metrics"
	"github.com/kevinmaint/maint-api/internal/request"
)

// ErrorHandler turns a handler panic into a 500 envelope. The panic value and
// stack stay in the server log under the request's correlation ID.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				metrics.HTTPPanicsTotal.Inc()
				logger.Error("panic_recovered",
					zap.Any("panic", rec),
					zap.String("request_id", request.RequestID(r.Context())),
					zap.String("method", r.Method),
					logpkg.Path(r.URL.Path),
					zap.Stack("stack"),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				if err := json.NewEncoder(w).Encode(newErrorResponse(r, http.StatusInternalServerError,
					"An unexpected error occurred")); err != nil {
					logger.Error("failed_to_encode_error_response", zap.Error(err))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
