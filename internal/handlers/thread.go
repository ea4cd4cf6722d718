package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kevinmaint/maint-api/internal/database"
	"github.com/kevinmaint/maint-api/internal/models"
	"github.com/kevinmaint/maint-api/internal/services/thread"
	"github.com/kevinmaint/maint-api/internal/validation"
)

// ThreadService is the timeline surface the handler drives
type ThreadService interface {
	PostMessage(ctx context.Context, issue *models.Issue, msg *models.ThreadMessage) (*thread.PostResult, error)
	Messages(ctx context.Context, issueID uuid.UUID) ([]*models.ThreadMessage, error)
	Message(ctx context.Context, messageID uuid.UUID) (*models.ThreadMessage, error)
	AcceptProposal(ctx context.Context, messageID, actorID uuid.UUID) (*database.AcceptResult, error)
	DismissProposal(ctx context.Context, messageID uuid.UUID) (*models.ThreadMessage, error)
	React(ctx context.Context, messageID uuid.UUID, emoji string, userID uuid.UUID) (*models.ThreadMessage, error)
	MarkRead(ctx context.Context, messageID, userID uuid.UUID) error
	Summary(ctx context.Context, issueID uuid.UUID) (*models.SmartSummary, error)
}

var _ ThreadService = (*thread.Service)(nil)

// ThreadHandler handles issue timeline requests
type ThreadHandler struct {
	issues  database.IssueRepositoryInterface
	service ThreadService
	logger  *zap.Logger
}

// NewThreadHandler creates a new thread handler
func NewThreadHandler(issues database.IssueRepositoryInterface, service ThreadService, logger *zap.Logger) *ThreadHandler {
	return &ThreadHandler{issues: issues, service: service, logger: logger}
}

// RegisterRoutes registers thread routes on the /api/v1 router
func (h *ThreadHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/issues/{id}/messages", h.ListMessages).Methods("GET")
	r.HandleFunc("/issues/{id}/messages", h.PostMessage).Methods("POST")
	r.HandleFunc("/issues/{id}/summary", h.GetSummary).Methods("GET")
	r.HandleFunc("/messages/{id}/proposal/accept", h.AcceptProposal).Methods("POST")
	r.HandleFunc("/messages/{id}/proposal/dismiss", h.DismissProposal).Methods("POST")
	r.HandleFunc("/messages/{id}/reactions", h.AddReaction).Methods("POST")
	r.HandleFunc("/messages/{id}/read", h.MarkRead).Methods("POST")
}

// PostMessageRequest represents a new thread message
type PostMessageRequest struct {
	Message        string              `json:"message" validate:"max=10000"`
	Type           models.MessageType  `json:"type" validate:"required,message_type"`
	AttachmentURLs []string            `json:"attachment_urls,omitempty" validate:"max=10,dive,url,max=2048"`
	NewStatus      *models.IssueStatus `json:"new_status,omitempty" validate:"omitempty,issue_status"`
	ParentID       *uuid.UUID          `json:"parent_id,omitempty"`
}

// ReactionRequest adds an emoji reaction
type ReactionRequest struct {
	Emoji string `json:"emoji" validate:"required,max=32"`
}

// ProposalDecisionResponse is returned by accept and dismiss
type ProposalDecisionResponse struct {
	Message *models.ThreadMessage `json:"message"`
	Issue   *models.Issue         `json:"issue,omitempty"`
	Summary *models.SmartSummary  `json:"summary,omitempty"`
	Applied bool                  `json:"applied"`
}

// ListMessages returns an issue's timeline, oldest first
func (h *ThreadHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	issue, ok := loadAccessibleIssue(w, r, h.issues, user, "id")
	if !ok {
		return
	}

	messages, err := h.service.Messages(r.Context(), issue.ID)
	if err != nil {
		h.logger.Error("thread_list_failed", zap.String("issue_id", issue.ID.String()), zap.Error(err))
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messages)
}

// PostMessage appends a message to an issue's timeline
func (h *ThreadHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	issue, ok := loadAccessibleIssue(w, r, h.issues, user, "id")
	if !ok {
		return
	}

	var req PostMessageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.Type == models.MessageTypeSystem {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "system messages cannot be posted")
		return
	}

	msg := &models.ThreadMessage{
		AuthorID:       user.ID,
		Message:        validation.SanitizeText(req.Message),
		Type:           req.Type,
		AttachmentURLs: req.AttachmentURLs,
		NewStatus:      req.NewStatus,
		ParentID:       req.ParentID,
	}
	result, err := h.service.PostMessage(r.Context(), issue, msg)
	if err != nil {
		h.logger.Warn("thread_post_failed", zap.String("issue_id", issue.ID.String()), zap.Error(err))
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// GetSummary returns the issue's smart summary
func (h *ThreadHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	issue, ok := loadAccessibleIssue(w, r, h.issues, user, "id")
	if !ok {
		return
	}

	sum, err := h.service.Summary(r.Context(), issue.ID)
	if err != nil {
		h.logger.Error("summary_get_failed", zap.String("issue_id", issue.ID.String()), zap.Error(err))
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

// loadMessage fetches the {id} message and checks the user may see its issue
func (h *ThreadHandler) loadMessage(w http.ResponseWriter, r *http.Request, user *models.User) (*models.ThreadMessage, bool) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return nil, false
	}
	msg, err := h.service.Message(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return nil, false
	}
	issue, err := h.issues.GetByID(r.Context(), msg.RequestID)
	if err != nil {
		respondServiceError(w, err)
		return nil, false
	}
	if !canAccessIssue(user, issue) {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Resource not found")
		return nil, false
	}
	return msg, true
}

// AcceptProposal applies a message's proposal to its issue. Accepting an
// already accepted proposal returns the current state with applied=false.
func (h *ThreadHandler) AcceptProposal(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	msg, ok := h.loadMessage(w, r, user)
	if !ok {
		return
	}

	result, err := h.service.AcceptProposal(r.Context(), msg.ID, user.ID)
	if err != nil {
		h.logger.Info("proposal_accept_rejected", zap.String("message_id", msg.ID.String()), zap.Error(err))
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ProposalDecisionResponse{
		Message: result.Message,
		Issue:   result.Issue,
		Summary: result.Summary,
		Applied: result.Applied,
	})
}

// DismissProposal marks a message's proposal as dismissed
func (h *ThreadHandler) DismissProposal(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	msg, ok := h.loadMessage(w, r, user)
	if !ok {
		return
	}

	updated, err := h.service.DismissProposal(r.Context(), msg.ID)
	if err != nil {
		h.logger.Info("proposal_dismiss_rejected", zap.String("message_id", msg.ID.String()), zap.Error(err))
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ProposalDecisionResponse{Message: updated})
}

// AddReaction records the user's emoji reaction on a message
func (h *ThreadHandler) AddReaction(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	msg, ok := h.loadMessage(w, r, user)
	if !ok {
		return
	}

	var req ReactionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	updated, err := h.service.React(r.Context(), msg.ID, req.Emoji, user.ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// MarkRead records that the user has read a message
func (h *ThreadHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	msg, ok := h.loadMessage(w, r, user)
	if !ok {
		return
	}

	if err := h.service.MarkRead(r.Context(), msg.ID, user.ID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message_id": msg.ID.String()})
}
