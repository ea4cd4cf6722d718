package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kevinmaint/maint-api/internal/database"
	"github.com/kevinmaint/maint-api/internal/middleware"
	"github.com/kevinmaint/maint-api/internal/models"
	"github.com/kevinmaint/maint-api/internal/validation"
)

// BugReportHandler handles in-app bug reports
type BugReportHandler struct {
	reports database.BugReportRepositoryInterface
	logger  *zap.Logger
}

// NewBugReportHandler creates a new bug report handler
func NewBugReportHandler(reports database.BugReportRepositoryInterface, logger *zap.Logger) *BugReportHandler {
	return &BugReportHandler{reports: reports, logger: logger}
}

const (
	defaultBugReportLimit = 50
	maxBugReportLimit     = 200
)

// RegisterRoutes registers bug report routes on the given router
// The router should already have the /bug-reports prefix
func (h *BugReportHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.CreateBugReport).Methods("POST")
	r.Handle("", middleware.RequireRole(models.RoleAdmin)(http.HandlerFunc(h.ListBugReports))).Methods("GET")
}

// CreateBugReportRequest represents a new bug report
type CreateBugReportRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"required,min=1,max=10000"`
	AppVersion  string `json:"app_version,omitempty" validate:"max=64"`
	Device      string `json:"device,omitempty" validate:"max=128"`
}

// CreateBugReport files a bug report for the authenticated user
func (h *BugReportHandler) CreateBugReport(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CreateBugReportRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	report := &models.BugReport{
		ID:          uuid.New(),
		UserID:      user.ID,
		Title:       validation.SanitizeText(req.Title),
		Description: validation.SanitizeText(req.Description),
		AppVersion:  validation.SanitizeText(req.AppVersion),
		Device:      validation.SanitizeText(req.Device),
	}
	if err := h.reports.Create(r.Context(), report); err != nil {
		h.logger.Error("bug_report_create_failed", zap.Error(err))
		respondServiceError(w, err)
		return
	}
	h.logger.Info("bug_report_created",
		zap.String("bug_report_id", report.ID.String()),
		zap.String("user_id", user.ID.String()),
	)
	respondJSON(w, http.StatusCreated, report)
}

// ListBugReports returns the newest reports for triage, optionally by status
func (h *BugReportHandler) ListBugReports(w http.ResponseWriter, r *http.Request) {
	var status *models.BugReportStatus
	switch s := models.BugReportStatus(r.URL.Query().Get("status")); s {
	case "":
	case models.BugReportOpen, models.BugReportResolved:
		status = &s
	default:
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "status must be open or resolved")
		return
	}

	limit := defaultBugReportLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxBugReportLimit)
	}

	reports, err := h.reports.List(r.Context(), status, limit)
	if err != nil {
		h.logger.Error("bug_report_list_failed", zap.Error(err))
		respondServiceError(w, err)
		return
	}
	if reports == nil {
		reports = []*models.BugReport{}
	}
	respondJSON(w, http.StatusOK, reports)
}
