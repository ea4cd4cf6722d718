// Package request holds the values the middleware chain attaches to each request.
package request

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/kevinmaint/maint-api/internal/models"
)

type (
	userKey      struct{}
	requestIDKey struct{}
)

// ClientIP is the address rate limits and security events are keyed on: the
// first X-Forwarded-For hop, then X-Real-IP, then the peer address without port.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// WithUser attaches the authenticated reporter, manager or admin
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the authenticated user, or nil
func UserFromContext(r *http.Request) *models.User {
	u, _ := r.Context().Value(userKey{}).(*models.User)
	return u
}

// WithRequestID attaches the correlation ID echoed in X-Request-ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the correlation ID, or "" outside a request
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
