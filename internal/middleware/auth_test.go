package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kevinmaint/maint-api/internal/models"
	"github.com/kevinmaint/maint-api/internal/request"
)

type stubVerifier struct {
	claims *models.JWTClaims
	err    error
	token  string
}

func (s *stubVerifier) Verify(ctx context.Context, token string) (*models.JWTClaims, error) {
	s.token = token
	return s.claims, s.err
}

type stubProvisioner struct {
	user *models.User
	err  error
}

func (s *stubProvisioner) EnsureFromClaims(ctx context.Context, claims *models.JWTClaims) (*models.User, error) {
	return s.user, s.err
}

func TestAuth(t *testing.T) {
	t.Parallel()

	user := &models.User{ID: uuid.New(), Email: "tech@example.com", Role: models.RoleReporter}

	tests := []struct {
		name        string
		header      string
		verifyErr   error
		provErr     error
		wantStatus  int
		wantToken   string
		wantHandled bool
	}{
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer ", wantStatus: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer bad", verifyErr: errors.New("expired"), wantStatus: http.StatusUnauthorized, wantToken: "bad"},
		{name: "provisioning fails", header: "Bearer good", provErr: errors.New("db down"), wantStatus: http.StatusInternalServerError, wantToken: "good"},
		{name: "valid token", header: "Bearer good", wantStatus: http.StatusOK, wantToken: "good", wantHandled: true},
		{name: "lowercase scheme", header: "bearer good", wantStatus: http.StatusOK, wantToken: "good", wantHandled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			verifier := &stubVerifier{claims: &models.JWTClaims{Sub: "sub-1"}, err: tt.verifyErr}
			provisioner := &stubProvisioner{user: user, err: tt.provErr}

			var seen *models.User
			handler := Auth(verifier, provisioner, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = UserFromContext(r)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest("GET", "/api/v1/issues", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if verifier.token != tt.wantToken {
				t.Errorf("verified token = %q, want %q", verifier.token, tt.wantToken)
			}
			if tt.wantHandled {
				if seen == nil || seen.ID != user.ID {
					t.Errorf("handler saw user %+v, want %s", seen, user.ID)
				}
				return
			}

			var body map[string]any
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if body["success"] != false {
				t.Errorf("success = %v, want false", body["success"])
			}
			if body["message"] == "" {
				t.Error("expected message in error body")
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		user       *models.User
		wantStatus int
	}{
		{name: "anonymous", wantStatus: http.StatusUnauthorized},
		{name: "reporter", user: &models.User{Role: models.RoleReporter}, wantStatus: http.StatusForbidden},
		{name: "admin", user: &models.User{Role: models.RoleAdmin}, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := RequireRole(models.RoleAdmin, models.RoleManager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest("GET", "/admin", nil)
			if tt.user != nil {
				req = req.WithContext(request.WithUser(req.Context(), tt.user))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
