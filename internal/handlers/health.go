package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// CheckFunc probes one dependency. A nil CheckFunc reports "not configured".
type CheckFunc func(ctx context.Context) error

// HealthChecker handles health check requests
type HealthChecker struct {
	version string
	names   []string
	checks  map[string]CheckFunc
	timeout time.Duration
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		version: version,
		checks:  make(map[string]CheckFunc),
		timeout: 5 * time.Second,
	}
}

// AddCheck registers a dependency probe for extended mode
func (h *HealthChecker) AddCheck(name string, check CheckFunc) *HealthChecker {
	if _, exists := h.checks[name]; !exists {
		h.names = append(h.names, name)
		sort.Strings(h.names)
	}
	h.checks[name] = check
	return h
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles the /healthz endpoint. ?mode=extended probes every
// registered dependency and answers 503 if any of them fails.
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	statusCode := http.StatusOK

	if r.URL.Query().Get("mode") == "extended" {
		response.Checks = make(map[string]string, len(h.names))
		for _, name := range h.names {
			check := h.checks[name]
			if check == nil {
				response.Checks[name] = "not configured"
				continue
			}
			ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
			err := check(ctx)
			cancel()
			if err != nil {
				response.Status = "unhealthy"
				response.Checks[name] = "unhealthy: " + sanitizeErrorMessage(err.Error())
			} else {
				response.Checks[name] = "healthy"
			}
		}
		if response.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// Version handles the /version endpoint
func (h *HealthChecker) Version(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"version": h.version})
}
