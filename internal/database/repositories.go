package database

import (
	"context"

	"github.com/google/uuid"

	"github.com/kevinmaint/maint-api/internal/models"
)

// IssueRepositoryInterface defines the issue operations used by handlers and services
type IssueRepositoryInterface interface {
	Create(ctx context.Context, issue *models.Issue) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Issue, error)
	List(ctx context.Context, filter IssueFilter, page, pageSize int) ([]*models.Issue, int, error)
	Update(ctx context.Context, id uuid.UUID, patch IssuePatch) (*models.Issue, error)
}

// ThreadRepositoryInterface defines thread message operations, including the
// transactional proposal workflow
type ThreadRepositoryInterface interface {
	Create(ctx context.Context, msg *models.ThreadMessage) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ThreadMessage, error)
	ListByIssue(ctx context.Context, issueID uuid.UUID) ([]*models.ThreadMessage, error)
	SetProposal(ctx context.Context, messageID uuid.UUID, proposal *models.AIProposal) (bool, error)
	AddReaction(ctx context.Context, messageID uuid.UUID, emoji string, userID uuid.UUID) (*models.ThreadMessage, error)
	MarkRead(ctx context.Context, messageID, userID uuid.UUID) error
	AcceptProposal(ctx context.Context, messageID, actorID uuid.UUID) (*AcceptResult, error)
	DismissProposal(ctx context.Context, messageID uuid.UUID) (*models.ThreadMessage, bool, error)
	ApplyStatusChange(ctx context.Context, msg *models.ThreadMessage) (*StatusChangeResult, error)
}

// SummaryRepositoryInterface defines smart summary operations
type SummaryRepositoryInterface interface {
	Get(ctx context.Context, issueID uuid.UUID) (*models.SmartSummary, error)
	Upsert(ctx context.Context, s *models.SmartSummary) error
	Recompute(ctx context.Context, issueID uuid.UUID) (*models.SmartSummary, error)
}

// WorkLogRepositoryInterface defines work log reads
type WorkLogRepositoryInterface interface {
	ListByIssue(ctx context.Context, issueID uuid.UUID) ([]*models.WorkLogEntry, error)
}

// BugReportRepositoryInterface defines bug report operations
type BugReportRepositoryInterface interface {
	Create(ctx context.Context, report *models.BugReport) error
	List(ctx context.Context, status *models.BugReportStatus, limit int) ([]*models.BugReport, error)
}

// UserRepositoryInterface defines the user operations used by authentication
type UserRepositoryInterface interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	EnsureFromClaims(ctx context.Context, claims *models.JWTClaims) (*models.User, error)
}

// Ensure concrete types implement the interfaces
var (
	_ IssueRepositoryInterface     = (*IssueRepository)(nil)
	_ ThreadRepositoryInterface    = (*ThreadRepository)(nil)
	_ SummaryRepositoryInterface   = (*SummaryRepository)(nil)
	_ WorkLogRepositoryInterface   = (*WorkLogRepository)(nil)
	_ BugReportRepositoryInterface = (*BugReportRepository)(nil)
	_ UserRepositoryInterface      = (*UserRepository)(nil)
)
