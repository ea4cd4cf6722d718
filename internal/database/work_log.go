package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kevinmaint/maint-api/internal/models"
)

// WorkLogRepository reads the audit trail of changes applied to issues
type WorkLogRepository struct {
	db *DB
}

// NewWorkLogRepository creates a new work log repository
func NewWorkLogRepository(db *DB) *WorkLogRepository {
	return &WorkLogRepository{db: db}
}

func insertWorkLog(ctx context.Context, q querier, entry *models.WorkLogEntry) error {
	query := `
		INSERT INTO work_log (id, issue_id, message_id, actor_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := q.ExecContext(ctx, query,
		entry.ID,
		entry.IssueID,
		entry.MessageID,
		entry.ActorID,
		entry.Action,
		entry.Details,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write work log: %w", err)
	}
	return nil
}

// ListByIssue returns an issue's work log, oldest first
func (r *WorkLogRepository) ListByIssue(ctx context.Context, issueID uuid.UUID) ([]*models.WorkLogEntry, error) {
	query := `
		SELECT id, issue_id, message_id, actor_id, action, details, created_at
		FROM work_log
		WHERE issue_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to query work log: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	entries := []*models.WorkLogEntry{}
	for rows.Next() {
		entry := &models.WorkLogEntry{}
		var messageID uuid.NullUUID
		if err := rows.Scan(
			&entry.ID,
			&entry.IssueID,
			&messageID,
			&entry.ActorID,
			&entry.Action,
			&entry.Details,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan work log entry: %w", err)
		}
		if messageID.Valid {
			id := messageID.UUID
			entry.MessageID = &id
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating work log: %w", err)
	}
	return entries, nil
}
