package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kevinmaint/maint-api/internal/request"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantPanic  bool
	}{
		{
			name: "no panic passes through",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusCreated)
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "string panic",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic("proposal engine exploded")
			},
			wantStatus: http.StatusInternalServerError,
			wantPanic:  true,
		},
		{
			name: "runtime panic",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var reactions map[string][]string
				reactions["👍"] = nil
			},
			wantStatus: http.StatusInternalServerError,
			wantPanic:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.ErrorLevel)
			h := ErrorHandler(zap.New(core))(tt.handler)

			req := httptest.NewRequest("POST", "/api/v1/messages/abc/proposal/accept", nil)
			req = req.WithContext(request.WithRequestID(req.Context(), "req-123"))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if !tt.wantPanic {
				if logs.Len() != 0 {
					t.Errorf("unexpected error logs: %d", logs.Len())
				}
				return
			}

			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var body ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body.Success || body.Error != "Internal Server Error" || body.Timestamp == "" {
				t.Errorf("unexpected envelope %+v", body)
			}
			if body.Message != "An unexpected error occurred" {
				t.Errorf("panic detail leaked to client: %q", body.Message)
			}
			if body.RequestID != "req-123" {
				t.Errorf("request_id = %q, want req-123", body.RequestID)
			}

			entries := logs.FilterMessage("panic_recovered").All()
			if len(entries) != 1 {
				t.Fatalf("panic_recovered logged %d times, want 1", len(entries))
			}
			fields := entries[0].ContextMap()
			if fields["request_id"] != "req-123" {
				t.Errorf("logged request_id = %v", fields["request_id"])
			}
			if fields["stack"] == "" || fields["stack"] == nil {
				t.Error("expected stack in panic log")
			}
		})
	}
}

func TestErrorHandler_AbortHandlerPropagates(t *testing.T) {
	t.Parallel()

	h := ErrorHandler(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/issues", nil))
	t.Error("expected panic to propagate")
}
