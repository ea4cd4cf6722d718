package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/kevinmaint/maint-api/internal/database"
	"github.com/kevinmaint/maint-api/internal/middleware"
	"github.com/kevinmaint/maint-api/internal/models"
	"github.com/kevinmaint/maint-api/internal/services/thread"
	"github.com/kevinmaint/maint-api/internal/validation"
)

const (
	// DefaultPageSize is the default page size for pagination
	DefaultPageSize = 20
	// MaxPageSize is the maximum page size for pagination
	MaxPageSize           = 100
	maxErrorMessageLength = 200
)

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage keeps client-facing error messages short
func sanitizeErrorMessage(message string) string {
	if len(message) > maxErrorMessageLength {
		return message[:maxErrorMessageLength] + "..."
	}
	return message
}

// respondJSONError sends an error JSON response with sanitized error messages
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	respondJSONErrorData(w, status, errorType, message, nil)
}

// respondJSONErrorData is respondJSONError with a structured payload for the client
func respondJSONErrorData(w http.ResponseWriter, status int, errorType, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   sanitizeErrorMessage(message),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if data != nil {
		response["data"] = data
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondServiceError maps domain errors onto HTTP statuses. Anything
// unrecognised is a 500 whose detail stays in the server log.
func respondServiceError(w http.ResponseWriter, err error) {
	var decodeErr *models.DecodeError
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondJSONError(w, http.StatusNotFound, "Not Found", "Resource not found")
	case errors.Is(err, database.ErrProposalConflict):
		respondJSONError(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, database.ErrNoProposal):
		respondJSONError(w, http.StatusConflict, "Conflict", "Message has no proposal")
	case errors.Is(err, thread.ErrInvalidMessage):
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.As(err, &decodeErr):
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Stored data could not be decoded")
	default:
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred")
	}
}

// decodeAndValidate reads a JSON body into dst and runs struct validation
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "Request body too large")
			return false
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return false
	}
	if err := validation.Validate.Struct(dst); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Validation Error", validation.FieldErrors(err))
		return false
	}
	return true
}

// pathUUID parses a UUID route variable, writing a 400 when it is malformed
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// requireUser returns the authenticated user, writing a 401 when there is none
func requireUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return nil, false
	}
	return user, true
}

// pagination parses page and page_size query parameters
func pagination(r *http.Request) (page, pageSize int) {
	page = 1
	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}

	pageSize = DefaultPageSize
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if parsed, err := strconv.Atoi(ps); err == nil && parsed > 0 {
			pageSize = min(parsed, MaxPageSize)
		}
	}
	return page, pageSize
}

// canAccessIssue reports whether user may read or change issue. Reporters see
// their own issues; managers and admins see all.
func canAccessIssue(user *models.User, issue *models.Issue) bool {
	if user.Role == models.RoleAdmin || user.Role == models.RoleManager {
		return true
	}
	return issue.ReporterID == user.ID
}
