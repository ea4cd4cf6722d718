// Package thread orchestrates an issue's timeline: posting messages, asking a
// proposal engine about them and resolving the proposals it returns.
package thread

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kevinmaint/maint-api/internal/database"
	"github.com/kevinmaint/maint-api/internal/metrics"
	"github.com/kevinmaint/maint-api/internal/models"
	"github.com/kevinmaint/maint-api/internal/queue"
	"github.com/kevinmaint/maint-api/internal/services/ai"
	"github.com/kevinmaint/maint-api/internal/telemetry"
)

// ErrInvalidMessage wraps every shape violation of a posted message
var ErrInvalidMessage = errors.New("invalid message")

// recentMessageLimit bounds how much history a proposal engine is shown
const recentMessageLimit = 10

// Service coordinates thread persistence and proposal generation
type Service struct {
	issues    database.IssueRepositoryInterface
	threads   database.ThreadRepositoryInterface
	summaries database.SummaryRepositoryInterface
	engine    ai.ProposalEngine
	jobs      queue.Enqueuer
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a thread service. With a nil jobs queue proposals are
// generated inline while the message is posted.
func NewService(
	issues database.IssueRepositoryInterface,
	threads database.ThreadRepositoryInterface,
	summaries database.SummaryRepositoryInterface,
	engine ai.ProposalEngine,
	jobs queue.Enqueuer,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		issues:    issues,
		threads:   threads,
		summaries: summaries,
		engine:    engine,
		jobs:      jobs,
		logger:    logger,
		now:       time.Now,
	}
}

// PostResult is what posting a message changed. Issue and Summary are set
// when the message changed the issue's status; ProposalQueued is true when
// analysis was handed to the worker.
type PostResult struct {
	Message        *models.ThreadMessage `json:"message"`
	Issue          *models.Issue         `json:"issue,omitempty"`
	Summary        *models.SmartSummary  `json:"summary,omitempty"`
	ProposalQueued bool                  `json:"proposal_queued"`
}

// checkParent requires a reply's parent to be a message on the same issue
func (s *Service) checkParent(ctx context.Context, issueID, parentID uuid.UUID) error {
	parent, err := s.threads.GetByID(ctx, parentID)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("%w: parent message %s not found", ErrInvalidMessage, parentID)
	}
	if err != nil {
		return fmt.Errorf("failed to load parent message: %w", err)
	}
	if parent.RequestID != issueID {
		return fmt.Errorf("%w: parent message %s belongs to another issue", ErrInvalidMessage, parentID)
	}
	return nil
}

// PostMessage validates and stores msg on issue. status_change messages are
// applied to the issue immediately; user messages are then offered to the
// proposal engine.
func (s *Service) PostMessage(ctx context.Context, issue *models.Issue, msg *models.ThreadMessage) (*PostResult, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	msg.RequestID = issue.ID
	msg.Message = strings.TrimSpace(msg.Message)
	if msg.AuthorType == "" {
		msg.AuthorType = models.AuthorTypeUser
	}
	if msg.DeliveryStatus == nil {
		sent := models.DeliverySent
		msg.DeliveryStatus = &sent
	}
	// Proposals are attached by the engine, never posted
	msg.Proposal = nil
	msg.ProposalAccepted = nil
	msg.AcceptedAt = nil

	if err := msg.CheckShape(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.ParentID != nil {
		if err := s.checkParent(ctx, issue.ID, *msg.ParentID); err != nil {
			return nil, err
		}
	}

	result := &PostResult{Message: msg}

	if msg.Type == models.MessageTypeStatusChange {
		applied, err := s.threads.ApplyStatusChange(ctx, msg)
		if err != nil {
			return nil, fmt.Errorf("failed to apply status change: %w", err)
		}
		result.Issue = applied.Issue
		result.Summary = applied.Summary
		s.logger.Info("issue_status_changed",
			zap.String("issue_id", issue.ID.String()),
			zap.String("status", string(*msg.NewStatus)),
		)
		return result, nil
	}

	if err := s.threads.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	s.logger.Debug("thread_message_posted",
		zap.String("issue_id", issue.ID.String()),
		zap.String("message_id", msg.ID.String()),
		zap.String("type", string(msg.Type)),
	)

	if msg.AuthorType != models.AuthorTypeUser || s.engine == nil {
		return result, nil
	}

	if s.jobs != nil {
		err := s.jobs.Enqueue(ctx, queue.NewProposalJob(issue.ID, msg.ID))
		if err == nil {
			result.ProposalQueued = true
			return result, nil
		}
		s.logger.Warn("proposal_enqueue_failed",
			zap.String("message_id", msg.ID.String()),
			zap.Error(err),
		)
	}

	// A failed analysis leaves the message without a proposal; the post itself succeeded
	if _, err := s.AnalyzeMessage(ctx, msg.ID); err != nil {
		s.logger.Warn("proposal_generation_failed",
			zap.String("message_id", msg.ID.String()),
			zap.Error(err),
		)
	} else if stored, err := s.threads.GetByID(ctx, msg.ID); err == nil {
		result.Message = stored
	}
	return result, nil
}

// ChangeStatus records a status change on the issue's thread
func (s *Service) ChangeStatus(ctx context.Context, issue *models.Issue, actorID uuid.UUID, status models.IssueStatus, note string) (*PostResult, error) {
	return s.PostMessage(ctx, issue, &models.ThreadMessage{
		AuthorID:   actorID,
		AuthorType: models.AuthorTypeUser,
		Type:       models.MessageTypeStatusChange,
		Message:    note,
		NewStatus:  &status,
	})
}

// AnalyzeMessage asks the proposal engine about a stored message and attaches
// the result. A message that already carries a proposal is returned as is.
// Returns nil when the engine had nothing to propose.
func (s *Service) AnalyzeMessage(ctx context.Context, messageID uuid.UUID) (*models.AIProposal, error) {
	if s.engine == nil {
		return nil, fmt.Errorf("no proposal engine configured")
	}

	msg, err := s.threads.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Proposal != nil {
		return msg.Proposal, nil
	}

	issueCtx, err := s.issueContext(ctx, msg.RequestID, msg.ID)
	if err != nil {
		return nil, err
	}

	engineCtx, span := telemetry.Tracer("thread").Start(ctx, "proposal.engine")
	span.SetAttributes(
		attribute.String("proposal.engine", s.engine.Name()),
		attribute.String("issue.id", msg.RequestID.String()),
	)
	proposal, err := s.engine.Propose(engineCtx, msg, issueCtx)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
	if err != nil {
		return nil, fmt.Errorf("proposal engine %s: %w", s.engine.Name(), err)
	}
	if proposal == nil {
		return nil, nil
	}

	set, err := s.threads.SetProposal(ctx, msg.ID, proposal)
	if err != nil {
		return nil, err
	}
	if !set {
		// Another worker got there first; its proposal wins
		stored, err := s.threads.GetByID(ctx, msg.ID)
		if err != nil {
			return nil, err
		}
		return stored.Proposal, nil
	}

	metrics.ProposalsGenerated.WithLabelValues(s.engine.Name()).Inc()
	s.logger.Info("proposal_generated",
		zap.String("issue_id", msg.RequestID.String()),
		zap.String("message_id", msg.ID.String()),
		zap.String("engine", s.engine.Name()),
		zap.Float64("confidence", proposal.Confidence),
		zap.Bool("has_changes", proposal.HasChanges()),
	)
	return proposal, nil
}

func (s *Service) issueContext(ctx context.Context, issueID, excludeID uuid.UUID) (*models.IssueContext, error) {
	issue, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, err
	}

	history, err := s.threads.ListByIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	recent := make([]*models.ThreadMessage, 0, len(history))
	for _, m := range history {
		if m.ID != excludeID {
			recent = append(recent, m)
		}
	}
	if len(recent) > recentMessageLimit {
		recent = recent[len(recent)-recentMessageLimit:]
	}

	issueCtx := &models.IssueContext{Issue: issue, RecentMessages: recent}
	sum, err := s.summaries.Get(ctx, issueID)
	switch {
	case err == nil:
		issueCtx.Summary = sum
	case !errors.Is(err, database.ErrNotFound):
		return nil, err
	}
	return issueCtx, nil
}

// AcceptProposal applies a message's proposal to its issue
func (s *Service) AcceptProposal(ctx context.Context, messageID, actorID uuid.UUID) (*database.AcceptResult, error) {
	result, err := s.threads.AcceptProposal(ctx, messageID, actorID)
	if err != nil {
		return nil, err
	}
	if result.Applied {
		metrics.ProposalDecisions.WithLabelValues("accepted").Inc()
		s.logger.Info("proposal_accepted",
			zap.String("issue_id", result.Issue.ID.String()),
			zap.String("message_id", messageID.String()),
			zap.String("actor_id", actorID.String()),
			zap.String("status", string(result.Issue.Status)),
			zap.Float64("total_cost", result.Issue.TotalCost),
		)
	}
	return result, nil
}

// DismissProposal marks a proposal as dismissed. The issue is left untouched.
func (s *Service) DismissProposal(ctx context.Context, messageID uuid.UUID) (*models.ThreadMessage, error) {
	msg, changed, err := s.threads.DismissProposal(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if changed {
		metrics.ProposalDecisions.WithLabelValues("dismissed").Inc()
		s.logger.Info("proposal_dismissed",
			zap.String("issue_id", msg.RequestID.String()),
			zap.String("message_id", messageID.String()),
		)
	}
	return msg, nil
}

// Messages returns the issue's timeline
func (s *Service) Messages(ctx context.Context, issueID uuid.UUID) ([]*models.ThreadMessage, error) {
	return s.threads.ListByIssue(ctx, issueID)
}

// Message returns one message
func (s *Service) Message(ctx context.Context, messageID uuid.UUID) (*models.ThreadMessage, error) {
	return s.threads.GetByID(ctx, messageID)
}

// React adds userID's emoji reaction to a message
func (s *Service) React(ctx context.Context, messageID uuid.UUID, emoji string, userID uuid.UUID) (*models.ThreadMessage, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, fmt.Errorf("%w: reaction is required", ErrInvalidMessage)
	}
	return s.threads.AddReaction(ctx, messageID, emoji, userID)
}

// MarkRead records that userID has read a message
func (s *Service) MarkRead(ctx context.Context, messageID, userID uuid.UUID) error {
	return s.threads.MarkRead(ctx, messageID, userID)
}

// Summary returns the issue's smart summary, building it on first request
func (s *Service) Summary(ctx context.Context, issueID uuid.UUID) (*models.SmartSummary, error) {
	sum, err := s.summaries.Get(ctx, issueID)
	if errors.Is(err, database.ErrNotFound) {
		return s.summaries.Recompute(ctx, issueID)
	}
	return sum, err
}

// RecomputeSummary rebuilds and stores the issue's smart summary
func (s *Service) RecomputeSummary(ctx context.Context, issueID uuid.UUID) (*models.SmartSummary, error) {
	sum, err := s.summaries.Recompute(ctx, issueID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("summary_recomputed",
		zap.String("issue_id", issueID.String()),
		zap.String("status", string(sum.CurrentStatus)),
		zap.Float64("total_cost", sum.TotalCost),
	)
	return sum, nil
}
