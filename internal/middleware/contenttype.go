package middleware

import (
	"mime"
	"net/http"
)

// ContentType requires a JSON Content-Type on requests that carry a body.
// Bodyless POSTs such as proposal accept and dismiss are let through.
func ContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPatch, http.MethodPut:
		default:
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength <= 0 && len(r.TransferEncoding) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Content-Type")
		if header == "" {
			respondError(w, r, http.StatusBadRequest, "Content-Type header is required")
			return
		}
		mediaType, _, err := mime.ParseMediaType(header)
		if err != nil || mediaType != "application/json" {
			respondError(w, r, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}
