package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kevinmaint/maint-api/internal/database"
	"github.com/kevinmaint/maint-api/internal/models"
	"github.com/kevinmaint/maint-api/internal/services/thread"
)

func TestRespondJSON_Envelope(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	respondJSON(w, http.StatusCreated, map[string]string{"status": "reported"})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body struct {
		Success   bool              `json:"success"`
		Data      map[string]string `json:"data"`
		Timestamp string            `json:"timestamp"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Data["status"] != "reported" {
		t.Errorf("unexpected body %+v", body)
	}
	if _, err := time.Parse(time.RFC3339, body.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", body.Timestamp, err)
	}
}

func TestRespondJSONErrorData(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	long := strings.Repeat("a", maxErrorMessageLength+50)
	respondJSONErrorData(w, http.StatusGatewayTimeout, "Detection Failed", long, map[string]bool{"retryable": true})

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["success"] != false || body["error"] != "Detection Failed" {
		t.Errorf("unexpected envelope %v", body)
	}
	if msg := body["message"].(string); len(msg) != maxErrorMessageLength+3 || !strings.HasSuffix(msg, "...") {
		t.Errorf("message not truncated: %d chars", len(msg))
	}
	if data, ok := body["data"].(map[string]any); !ok || data["retryable"] != true {
		t.Errorf("data = %v", body["data"])
	}
}

func TestRespondServiceError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{name: "not found", err: fmt.Errorf("get issue: %w", database.ErrNotFound), wantStatus: http.StatusNotFound, wantMessage: "Resource not found"},
		{name: "proposal conflict", err: database.ErrProposalConflict, wantStatus: http.StatusConflict},
		{name: "no proposal", err: database.ErrNoProposal, wantStatus: http.StatusConflict, wantMessage: "Message has no proposal"},
		{name: "invalid message", err: fmt.Errorf("%w: reaction is required", thread.ErrInvalidMessage), wantStatus: http.StatusBadRequest, wantMessage: "invalid message: reaction is required"},
		{name: "corrupt proposal", err: &models.DecodeError{Document: "proposal", Reason: "bad"}, wantStatus: http.StatusInternalServerError, wantMessage: "Stored data could not be decoded"},
		{name: "unknown", err: errBoom, wantStatus: http.StatusInternalServerError, wantMessage: "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			respondServiceError(w, tt.err)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantMessage == "" {
				return
			}
			var body map[string]any
			_ = json.Unmarshal(w.Body.Bytes(), &body)
			if body["message"] != tt.wantMessage {
				t.Errorf("message = %v, want %q", body["message"], tt.wantMessage)
			}
			if strings.Contains(w.Body.String(), "boom") {
				t.Error("internal error text leaked to the client")
			}
		})
	}
}

func TestDecodeAndValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		limit      int64
		wantOK     bool
		wantStatus int
	}{
		{name: "valid", body: `{"title":"Crash","description":"On open"}`, wantOK: true},
		{name: "malformed", body: `{"title":`, wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: `{"title":"Crash","description":"x","severity":"high"}`, wantStatus: http.StatusBadRequest},
		{name: "validation failure", body: `{"title":"","description":"x"}`, wantStatus: http.StatusBadRequest},
		{name: "too large", body: `{"title":"Crash","description":"` + strings.Repeat("x", 256) + `"}`, limit: 64, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/api/v1/bug-reports", strings.NewReader(tt.body))
			if tt.limit > 0 {
				req.Body = http.MaxBytesReader(w, req.Body, tt.limit)
			}

			var dst CreateBugReportRequest
			ok := decodeAndValidate(w, req, &dst)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v (%s)", ok, tt.wantOK, w.Body.String())
			}
			if !ok && w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestPagination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query        string
		wantPage     int
		wantPageSize int
	}{
		{query: "", wantPage: 1, wantPageSize: DefaultPageSize},
		{query: "?page=3&page_size=10", wantPage: 3, wantPageSize: 10},
		{query: "?page=0&page_size=-5", wantPage: 1, wantPageSize: DefaultPageSize},
		{query: "?page=abc&page_size=1000", wantPage: 1, wantPageSize: MaxPageSize},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()

			page, size := pagination(httptest.NewRequest("GET", "/api/v1/issues"+tt.query, nil))
			if page != tt.wantPage || size != tt.wantPageSize {
				t.Errorf("got (%d, %d), want (%d, %d)", page, size, tt.wantPage, tt.wantPageSize)
			}
		})
	}
}

func TestCanAccessIssue(t *testing.T) {
	t.Parallel()

	reporter := &models.User{ID: uuid.New(), Role: models.RoleReporter}
	issue := &models.Issue{ID: uuid.New(), ReporterID: reporter.ID}

	tests := []struct {
		name string
		user *models.User
		want bool
	}{
		{name: "own issue", user: reporter, want: true},
		{name: "other reporter", user: &models.User{ID: uuid.New(), Role: models.RoleReporter}},
		{name: "manager", user: &models.User{ID: uuid.New(), Role: models.RoleManager}, want: true},
		{name: "admin", user: &models.User{ID: uuid.New(), Role: models.RoleAdmin}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := canAccessIssue(tt.user, issue); got != tt.want {
				t.Errorf("canAccessIssue = %v, want %v", got, tt.want)
			}
		})
	}
}

// newTestRequest builds a request whose body is body encoded as JSON
func newTestRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	return httptest.NewRequest(method, path, &buf)
}
