package database

import (
	"context"
	"fmt"
	"time"

	"github.com/kevinmaint/maint-api/internal/models"
)

// BugReportRepository handles bug report persistence
type BugReportRepository struct {
	db *DB
}

// NewBugReportRepository creates a new bug report repository
func NewBugReportRepository(db *DB) *BugReportRepository {
	return &BugReportRepository{db: db}
}

// Create stores a bug report
func (r *BugReportRepository) Create(ctx context.Context, report *models.BugReport) error {
	query := `
		INSERT INTO bug_reports (id, user_id, title, description, app_version, device, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if report.Status == "" {
		report.Status = models.BugReportOpen
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		report.ID,
		report.UserID,
		report.Title,
		report.Description,
		report.AppVersion,
		report.Device,
		report.Status,
		report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bug report: %w", err)
	}
	return nil
}

// List returns bug reports newest first, optionally filtered by status
func (r *BugReportRepository) List(ctx context.Context, status *models.BugReportStatus, limit int) ([]*models.BugReport, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, user_id, title, description, app_version, device, status, created_at
		FROM bug_reports
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	var statusArg *string
	if status != nil {
		s := string(*status)
		statusArg = &s
	}

	rows, err := r.db.QueryContext(ctx, query, statusArg, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bug reports: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	reports := []*models.BugReport{}
	for rows.Next() {
		report := &models.BugReport{}
		if err := rows.Scan(
			&report.ID,
			&report.UserID,
			&report.Title,
			&report.Description,
			&report.AppVersion,
			&report.Device,
			&report.Status,
			&report.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bug report: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bug reports: %w", err)
	}
	return reports, nil
}
