package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kevinmaint/maint-api/internal/location"
	"github.com/kevinmaint/maint-api/internal/models"
)

// LocationDetector is the detection surface the handler drives
type LocationDetector interface {
	Detect(ctx context.Context, req location.DetectionRequest) (*models.LocationContext, error)
	ConfirmSelection(ctx context.Context, fingerprint string, business models.NearbyBusiness,
		method models.DetectionMethod) (*models.FingerprintEntry, error)
}

// LocationHandler handles location detection requests
type LocationHandler struct {
	detector LocationDetector
	sessions *location.RetrySessions
	logger   *zap.Logger
}

// NewLocationHandler creates a new location handler
func NewLocationHandler(detector LocationDetector, sessions *location.RetrySessions, logger *zap.Logger) *LocationHandler {
	return &LocationHandler{detector: detector, sessions: sessions, logger: logger}
}

// RegisterRoutes registers location routes on the given router
// The router should already have the /location prefix
func (h *LocationHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/detect", h.Detect).Methods("POST")
	r.HandleFunc("/retry", h.Retry).Methods("POST")
	r.HandleFunc("/select", h.Select).Methods("POST")
}

// GPSFixRequest is a device position
type GPSFixRequest struct {
	Latitude  float64    `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64    `json:"longitude" validate:"gte=-180,lte=180"`
	Accuracy  float64    `json:"accuracy" validate:"gte=0"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// WiFiRequest is the network the device is joined to
type WiFiRequest struct {
	SSID  string `json:"ssid" validate:"max=64"`
	BSSID string `json:"bssid" validate:"max=64"`
}

// DetectLocationRequest is the body of detect and retry calls
type DetectLocationRequest struct {
	SessionID   string         `json:"session_id,omitempty" validate:"omitempty,max=128"`
	GPS         *GPSFixRequest `json:"gps,omitempty"`
	GPSFailure  string         `json:"gps_failure,omitempty" validate:"omitempty,oneof=permission_denied unavailable"`
	WiFi        *WiFiRequest   `json:"wifi,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty" validate:"omitempty,hexadecimal,len=64"`
}

func (req *DetectLocationRequest) toDetection() location.DetectionRequest {
	out := location.DetectionRequest{
		GPSFailure:  location.GPSFailure(req.GPSFailure),
		Fingerprint: req.Fingerprint,
	}
	if req.GPS != nil {
		out.GPS = &location.GPSFix{
			Latitude:  req.GPS.Latitude,
			Longitude: req.GPS.Longitude,
			Accuracy:  req.GPS.Accuracy,
		}
		if req.GPS.Timestamp != nil {
			out.GPS.Timestamp = *req.GPS.Timestamp
		}
	}
	if req.WiFi != nil {
		out.WiFi = &location.WiFiReading{SSID: req.WiFi.SSID, BSSID: req.WiFi.BSSID}
	}
	return out
}

// DetectionFailure is the payload returned with a failed detection
type DetectionFailure struct {
	Kind               location.DetectionErrorKind `json:"kind"`
	Description        string                      `json:"description"`
	RecoverySuggestion string                      `json:"recovery_suggestion"`
	Retryable          bool                        `json:"retryable"`
	RetriesRemaining   int                         `json:"retries_remaining"`
	Candidates         []models.NearbyBusiness     `json:"candidates,omitempty"`
}

// Detect runs one detection attempt. A success clears the session's retry budget.
func (h *LocationHandler) Detect(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	var req DetectLocationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	lc, err := h.detector.Detect(r.Context(), req.toDetection())
	if err != nil {
		h.respondDetectionError(w, req.SessionID, err)
		return
	}
	if req.SessionID != "" {
		h.sessions.Reset(req.SessionID)
	}
	respondJSON(w, http.StatusOK, lc)
}

// Retry re-runs detection after the session's backoff delay
func (h *LocationHandler) Retry(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}

	var req DetectLocationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		respondJSONError(w, http.StatusBadRequest, "Validation Error", "session_id is required for retries")
		return
	}

	manager := h.sessions.Get(req.SessionID)
	var lc *models.LocationContext
	err := manager.PerformRetry(r.Context(), func(ctx context.Context) error {
		var detectErr error
		lc, detectErr = h.detector.Detect(ctx, req.toDetection())
		return detectErr
	})

	switch {
	case errors.Is(err, location.ErrRetriesExhausted):
		respondJSONErrorData(w, http.StatusTooManyRequests, "Too Many Requests", err.Error(),
			map[string]int{"retries_remaining": 0})
	case errors.Is(err, location.ErrRetryInProgress):
		respondJSONError(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondJSONError(w, http.StatusRequestTimeout, "Request Timeout", "Retry was cancelled")
	case err != nil:
		h.respondDetectionError(w, req.SessionID, err)
	default:
		h.sessions.Reset(req.SessionID)
		respondJSON(w, http.StatusOK, lc)
	}
}

func (h *LocationHandler) respondDetectionError(w http.ResponseWriter, sessionID string, err error) {
	de, ok := location.AsDetectionError(err)
	if !ok {
		h.logger.Error("location_detection_error", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred")
		return
	}

	failure := DetectionFailure{
		Kind:               de.Kind,
		Description:        de.Kind.Description(),
		RecoverySuggestion: de.Kind.RecoverySuggestion(),
		Retryable:          de.Kind.Retryable(),
		Candidates:         de.Candidates,
	}
	if failure.Retryable {
		failure.RetriesRemaining = location.DefaultMaxRetryAttempts
		if sessionID != "" {
			failure.RetriesRemaining = h.sessions.Get(sessionID).Remaining()
		}
	}
	respondJSONErrorData(w, http.StatusUnprocessableEntity, "Detection Failed", de.Kind.Description(), failure)
}

// SelectLocationRequest confirms the business the reporter is at
type SelectLocationRequest struct {
	SessionID   string                `json:"session_id,omitempty" validate:"omitempty,max=128"`
	WiFi        *WiFiRequest          `json:"wifi,omitempty"`
	Fingerprint string                `json:"fingerprint,omitempty" validate:"omitempty,hexadecimal,len=64"`
	Business    models.NearbyBusiness `json:"business"`
	Method      string                `json:"method" validate:"required,oneof=manual_selection admin_override"`
}

// SelectLocationResponse reports what the selection resolved to
type SelectLocationResponse struct {
	Business        models.NearbyBusiness    `json:"business"`
	DetectionMethod models.DetectionMethod   `json:"detection_method"`
	Confidence      float64                  `json:"confidence"`
	Cached          bool                     `json:"cached"`
	Entry           *models.FingerprintEntry `json:"entry,omitempty"`
}

// Select records a manual or admin choice. With a Wi-Fi fingerprint the choice
// is cached so the next detection on that network is instant.
func (h *LocationHandler) Select(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req SelectLocationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.Business.ID == "" || req.Business.Name == "" {
		respondJSONError(w, http.StatusBadRequest, "Validation Error", "business id and name are required")
		return
	}

	method := models.DetectionMethod(req.Method)
	if method == models.DetectionAdminOverride && !user.IsAdmin() {
		respondJSONError(w, http.StatusForbidden, "Forbidden", "Only admins can override a detected location")
		return
	}

	fp := req.Fingerprint
	if fp == "" && req.WiFi != nil {
		fp = location.Fingerprint(req.WiFi.SSID, req.WiFi.BSSID)
	}

	resp := SelectLocationResponse{
		Business:        req.Business,
		DetectionMethod: method,
		Confidence:      method.Weight(),
	}
	if fp != "" {
		entry, err := h.detector.ConfirmSelection(r.Context(), fp, req.Business, method)
		if err != nil {
			h.logger.Warn("location_selection_cache_failed", zap.Error(err))
		} else {
			resp.Cached = true
			resp.Entry = entry
		}
	}
	if req.SessionID != "" {
		h.sessions.Reset(req.SessionID)
	}
	respondJSON(w, http.StatusOK, resp)
}
