package middleware

import "net/http"

// DefaultMaxRequestSize caps JSON bodies at 1MB
const DefaultMaxRequestSize int64 = 1 << 20

// MaxRequestSize rejects bodies over maxBytes. A declared Content-Length is
// refused up front; streamed bodies fail on read with *http.MaxBytesError.
func MaxRequestSize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				respondError(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
