package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	logpkg "github.com/kevinmaint/maint-api/internal/logger"
	"github.com/kevinmaint/maint-api/internal/metrics"
	"github.com/kevinmaint/maint-api/internal/request"
)

// RequestIDHeader carries the per-request correlation ID
const RequestIDHeader = "X-Request-ID"

// Logging assigns the correlation ID, logs one http_request line per request
// and records latency by route template. Rejected credentials are additionally
// logged as security events.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)
			r = r.WithContext(request.WithRequestID(r.Context(), requestID))

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			elapsed := time.Since(start)

			metrics.HTTPRequestDuration.
				WithLabelValues(r.Method, routeTemplate(r), statusClass(wrapped.statusCode)).
				Observe(elapsed.Seconds())

			fields := []zap.Field{
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				logpkg.Path(r.URL.Path),
				zap.Int("status_code", wrapped.statusCode),
				zap.Int64("duration_ms", elapsed.Milliseconds()),
			}
			logger.Info("http_request", fields...)

			if wrapped.statusCode == http.StatusUnauthorized || wrapped.statusCode == http.StatusForbidden {
				logger.Warn("security_event", append(fields,
					logpkg.ClientIP(request.ClientIP(r)),
				)...)
			}
		})
	}
}

// routeTemplate keeps metric cardinality bounded: issue and message IDs collapse into {id}
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
