package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	logpkg "github.com/kevinmaint/maint-api/internal/logger"
	"github.com/kevinmaint/maint-api/internal/models"
	"github.com/kevinmaint/maint-api/internal/request"
)

// TokenVerifier checks a bearer token and returns its claims
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.JWTClaims, error)
}

// UserProvisioner maps verified claims onto a stored user
type UserProvisioner interface {
	EnsureFromClaims(ctx context.Context, claims *models.JWTClaims) (*models.User, error)
}

// UserFromContext extracts the user from the request context
func UserFromContext(r *http.Request) *models.User {
	return request.UserFromContext(r)
}

// Auth creates authentication middleware that validates JWT bearer tokens and
// attaches the matching user to the request context.
func Auth(verifier TokenVerifier, users UserProvisioner, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, r, http.StatusUnauthorized, "Missing Authorization header")
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenString) == "" {
				respondError(w, r, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			ctx := r.Context()
			claims, err := verifier.Verify(ctx, strings.TrimSpace(tokenString))
			if err != nil {
				logger.Info("token_verification_failed",
					logpkg.Path(r.URL.Path),
					logpkg.Err(err),
				)
				respondError(w, r, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			user, err := users.EnsureFromClaims(ctx, claims)
			if err != nil {
				logger.Error("user_provisioning_failed",
					logpkg.Subject(claims.Sub),
					zap.Error(err),
				)
				respondError(w, r, http.StatusInternalServerError, "Failed to load user")
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithUser(ctx, user)))
		})
	}
}

// RequireRole rejects authenticated users whose role is not listed
func RequireRole(roles ...models.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r)
			if user == nil {
				respondError(w, r, http.StatusUnauthorized, "Authentication required")
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondError(w, r, http.StatusForbidden, "Insufficient permissions")
		})
	}
}
