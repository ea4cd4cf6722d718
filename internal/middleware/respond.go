package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kevinmaint/maint-api/internal/request"
)

// ErrorResponse is the error envelope shared with the handlers, plus the
// correlation ID so a client report can be matched to the server log
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id,omitempty"`
}

func newErrorResponse(r *http.Request, status int, message string) ErrorResponse {
	return ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: request.RequestID(r.Context()),
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(newErrorResponse(r, status, message))
}
