package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kevinmaint/maint-api/internal/models"
)

// SummaryRepository stores the materialized smart summary of each issue
type SummaryRepository struct {
	db  *DB
	now func() time.Time
}

// NewSummaryRepository creates a new summary repository
func NewSummaryRepository(db *DB) *SummaryRepository {
	return &SummaryRepository{db: db, now: time.Now}
}

func getSummary(ctx context.Context, q querier, issueID uuid.UUID) (*models.SmartSummary, error) {
	query := `
		SELECT issue_id, current_status, risk_level, total_cost, next_action, updated_at
		FROM smart_summaries
		WHERE issue_id = $1
	`

	s := &models.SmartSummary{}
	err := q.QueryRowContext(ctx, query, issueID).Scan(
		&s.IssueID,
		&s.CurrentStatus,
		&s.RiskLevel,
		&s.TotalCost,
		&s.NextAction,
		&s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("summary not found: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return s, nil
}

func upsertSummary(ctx context.Context, q querier, s *models.SmartSummary) error {
	query := `
		INSERT INTO smart_summaries (issue_id, current_status, risk_level, total_cost, next_action, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (issue_id) DO UPDATE SET
			current_status = EXCLUDED.current_status,
			risk_level = EXCLUDED.risk_level,
			total_cost = EXCLUDED.total_cost,
			next_action = EXCLUDED.next_action,
			updated_at = EXCLUDED.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		s.IssueID,
		s.CurrentStatus,
		s.RiskLevel,
		s.TotalCost,
		s.NextAction,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}
	return nil
}

// Get returns the stored summary for an issue
func (r *SummaryRepository) Get(ctx context.Context, issueID uuid.UUID) (*models.SmartSummary, error) {
	return getSummary(ctx, r.db, issueID)
}

// Upsert stores a summary, replacing any previous one
func (r *SummaryRepository) Upsert(ctx context.Context, s *models.SmartSummary) error {
	return upsertSummary(ctx, r.db, s)
}

// Recompute rebuilds an issue's summary from its thread and stores it
func (r *SummaryRepository) Recompute(ctx context.Context, issueID uuid.UUID) (*models.SmartSummary, error) {
	var sum *models.SmartSummary
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		issue, err := getIssue(ctx, tx, issueID, true)
		if err != nil {
			return err
		}
		sum, err = recomputeSummary(ctx, tx, issue, r.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}
