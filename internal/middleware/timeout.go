package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// DefaultRequestTimeout bounds a request when no timeout is configured
const DefaultRequestTimeout = 30 * time.Second

// Timeout cancels the handler's context after timeout and answers 503 with
// the JSON error envelope. A handler that already wrote keeps its response.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := json.Marshal(newErrorResponse(r, http.StatusServiceUnavailable, "Request timed out"))
			if err != nil {
				body = []byte(`{"success":false,"error":"Service Unavailable"}`)
			}
			// TimeoutHandler buffers the handler's headers, so this only
			// survives on the timeout path or when the handler sets none.
			w.Header().Set("Content-Type", "application/json")
			http.TimeoutHandler(next, timeout, string(body)).ServeHTTP(w, r)
		})
	}
}
