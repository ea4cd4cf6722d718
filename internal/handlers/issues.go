package handlers

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kevinmaint/maint-api/internal/database"
	"github.com/kevinmaint/maint-api/internal/models"
	"github.com/kevinmaint/maint-api/internal/services/ai"
	"github.com/kevinmaint/maint-api/internal/services/thread"
	"github.com/kevinmaint/maint-api/internal/validation"
)

// StatusChanger records status changes on an issue's thread
type StatusChanger interface {
	ChangeStatus(ctx context.Context, issue *models.Issue, actorID uuid.UUID, status models.IssueStatus, note string) (*thread.PostResult, error)
}

// IssueHandler handles issue-related requests
type IssueHandler struct {
	issues   database.IssueRepositoryInterface
	workLog  database.WorkLogRepositoryInterface
	threads  StatusChanger
	analyzer ai.ImageAnalyzer
	logger   *zap.Logger
}

// NewIssueHandler creates a new issue handler. analyzer may be nil, which
// disables photo analysis.
func NewIssueHandler(issues database.IssueRepositoryInterface, workLog database.WorkLogRepositoryInterface,
	threads StatusChanger, analyzer ai.ImageAnalyzer, logger *zap.Logger) *IssueHandler {
	return &IssueHandler{issues: issues, workLog: workLog, threads: threads, analyzer: analyzer, logger: logger}
}

// RegisterRoutes registers issue routes on the given router
// The router should already have the /issues prefix
func (h *IssueHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListIssues).Methods("GET")
	r.HandleFunc("", h.CreateIssue).Methods("POST")
	r.HandleFunc("/analyze-image", h.AnalyzeImage).Methods("POST")
	r.HandleFunc("/{id}", h.GetIssue).Methods("GET")
	r.HandleFunc("/{id}", h.UpdateIssue).Methods("PATCH")
	r.HandleFunc("/{id}/work-log", h.GetWorkLog).Methods("GET")
}

const (
	// MaxImageBytes bounds a decoded photo sent for analysis
	MaxImageBytes = 5 << 20
)

// CreateIssueRequest represents a create issue request
type CreateIssueRequest struct {
	Title         string                `json:"title" validate:"required,min=1,max=200"`
	Description   string                `json:"description" validate:"max=5000"`
	Category      string                `json:"category" validate:"max=100"`
	Priority      models.Priority       `json:"priority,omitempty" validate:"omitempty,priority"`
	BusinessID    *string               `json:"business_id,omitempty" validate:"omitempty,max=256"`
	BusinessName  *string               `json:"business_name,omitempty" validate:"omitempty,max=256"`
	PhotoURL      *string               `json:"photo_url,omitempty" validate:"omitempty,url,max=2048"`
	Latitude      *float64              `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude     *float64              `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	ImageAnalysis *models.ImageAnalysis `json:"image_analysis,omitempty"`
}

// UpdateIssueRequest represents an update issue request. A status change is
// recorded on the thread like any other status_change message.
type UpdateIssueRequest struct {
	Title       *string             `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string             `json:"description,omitempty" validate:"omitempty,max=5000"`
	Category    *string             `json:"category,omitempty" validate:"omitempty,max=100"`
	Priority    *models.Priority    `json:"priority,omitempty" validate:"omitempty,priority"`
	Status      *models.IssueStatus `json:"status,omitempty" validate:"omitempty,issue_status"`
	Note        string              `json:"note,omitempty" validate:"max=2000"`
}

// ListIssuesResponse represents the paginated response for listing issues
type ListIssuesResponse struct {
	Issues     []*models.Issue `json:"issues"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	Total      int             `json:"total"`
	TotalPages int             `json:"total_pages"`
}

// CreateIssue creates an issue for the authenticated reporter
func (h *IssueHandler) CreateIssue(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CreateIssueRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	issue := &models.Issue{
		ID:           uuid.New(),
		ReporterID:   user.ID,
		BusinessID:   req.BusinessID,
		BusinessName: req.BusinessName,
		Title:        validation.SanitizeText(req.Title),
		Description:  validation.SanitizeText(req.Description),
		Category:     validation.SanitizeText(req.Category),
		Priority:     req.Priority,
		PhotoURL:     req.PhotoURL,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
	}
	if a := req.ImageAnalysis; a != nil {
		desc := validation.SanitizeText(a.Description)
		confidence := min(max(a.Confidence, 0), 1)
		issue.AIDescription = &desc
		issue.AIConfidence = &confidence
		if issue.Category == "" {
			issue.Category = validation.SanitizeText(a.Category)
		}
		if issue.Priority == "" && a.Priority.Valid() {
			issue.Priority = a.Priority
		}
	}

	if err := h.issues.Create(r.Context(), issue); err != nil {
		h.logger.Error("issue_create_failed", zap.Error(err))
		respondServiceError(w, err)
		return
	}
	h.logger.Info("issue_created",
		zap.String("issue_id", issue.ID.String()),
		zap.String("reporter_id", user.ID.String()),
	)
	respondJSON(w, http.StatusCreated, issue)
}

// ListIssues lists issues visible to the authenticated user with pagination
func (h *IssueHandler) ListIssues(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	page, pageSize := pagination(r)
	var filter database.IssueFilter
	if user.Role == models.RoleReporter {
		filter.ReporterID = &user.ID
	}
	if s := r.URL.Query().Get("status"); s != "" {
		if err := validation.ValidateIssueStatus(s); err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		status := models.IssueStatus(s)
		filter.Status = &status
	}
	if b := r.URL.Query().Get("business_id"); b != "" {
		filter.BusinessID = &b
	}

	issues, total, err := h.issues.List(r.Context(), filter, page, pageSize)
	if err != nil {
		h.logger.Error("issue_list_failed", zap.Error(err))
		respondServiceError(w, err)
		return
	}

	totalPages := (total + pageSize - 1) / pageSize
	respondJSON(w, http.StatusOK, ListIssuesResponse{
		Issues:     issues,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	})
}

// loadIssue fetches the {id} issue and checks the user may see it. Issues of
// other reporters are reported as missing.
func (h *IssueHandler) loadIssue(w http.ResponseWriter, r *http.Request, user *models.User) (*models.Issue, bool) {
	return loadAccessibleIssue(w, r, h.issues, user, "id")
}

func loadAccessibleIssue(w http.ResponseWriter, r *http.Request, issues database.IssueRepositoryInterface,
	user *models.User, varName string) (*models.Issue, bool) {
	id, ok := pathUUID(w, r, varName)
	if !ok {
		return nil, false
	}
	issue, err := issues.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return nil, false
	}
	if !canAccessIssue(user, issue) {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Resource not found")
		return nil, false
	}
	return issue, true
}

// GetIssue returns one issue
func (h *IssueHandler) GetIssue(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	issue, ok := h.loadIssue(w, r, user)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, issue)
}

// UpdateIssue edits descriptive fields and, when status is set, records a
// status_change on the thread
func (h *IssueHandler) UpdateIssue(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	issue, ok := h.loadIssue(w, r, user)
	if !ok {
		return
	}

	var req UpdateIssueRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	var patch database.IssuePatch
	if req.Title != nil {
		title := validation.SanitizeText(*req.Title)
		patch.Title = &title
	}
	if req.Description != nil {
		description := validation.SanitizeText(*req.Description)
		patch.Description = &description
	}
	if req.Category != nil {
		category := validation.SanitizeText(*req.Category)
		patch.Category = &category
	}
	patch.Priority = req.Priority
	if !patch.Empty() {
		updated, err := h.issues.Update(ctx, issue.ID, patch)
		if err != nil {
			h.logger.Error("issue_update_failed", zap.String("issue_id", issue.ID.String()), zap.Error(err))
			respondServiceError(w, err)
			return
		}
		issue = updated
	}

	if req.Status != nil && *req.Status != issue.Status {
		result, err := h.threads.ChangeStatus(ctx, issue, user.ID, *req.Status, validation.SanitizeText(req.Note))
		if err != nil {
			h.logger.Error("issue_status_change_failed", zap.String("issue_id", issue.ID.String()), zap.Error(err))
			respondServiceError(w, err)
			return
		}
		if result.Issue != nil {
			issue = result.Issue
		}
	}

	respondJSON(w, http.StatusOK, issue)
}

// GetWorkLog returns the audit trail of changes applied to an issue
func (h *IssueHandler) GetWorkLog(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	issue, ok := h.loadIssue(w, r, user)
	if !ok {
		return
	}

	entries, err := h.workLog.ListByIssue(r.Context(), issue.ID)
	if err != nil {
		h.logger.Error("work_log_list_failed", zap.String("issue_id", issue.ID.String()), zap.Error(err))
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// AnalyzeImageRequest carries a base64 photo of the problem
type AnalyzeImageRequest struct {
	Image    string `json:"image" validate:"required"`
	MimeType string `json:"mime_type,omitempty" validate:"omitempty,oneof=image/jpeg image/png image/webp"`
}

// AnalyzeImage classifies a photo before the issue is created
func (h *IssueHandler) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	if h.analyzer == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Image analysis is not configured")
		return
	}

	var req AnalyzeImageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	encoded := req.Image
	if i := strings.Index(encoded, ";base64,"); strings.HasPrefix(encoded, "data:") && i > 0 {
		if req.MimeType == "" {
			req.MimeType = encoded[len("data:"):i]
		}
		encoded = encoded[i+len(";base64,"):]
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > MaxImageBytes {
		respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "Image is too large")
		return
	}
	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Image must be base64 encoded")
		return
	}

	analysis, err := h.analyzer.AnalyzeMaintenanceImage(r.Context(), image, req.MimeType)
	if err != nil {
		if ai.IsRateLimitError(err) {
			respondJSONError(w, http.StatusTooManyRequests, "Too Many Requests", "Image analysis is busy, try again shortly")
			return
		}
		h.logger.Warn("image_analysis_failed", zap.Error(err))
		respondJSONError(w, http.StatusBadGateway, "Bad Gateway", "Image analysis failed")
		return
	}
	respondJSON(w, http.StatusOK, analysis)
}
