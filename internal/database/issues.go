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

// IssueRepository handles issue database operations
type IssueRepository struct {
	db *DB
}

// NewIssueRepository creates a new issue repository
func NewIssueRepository(db *DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// IssueFilter narrows an issue listing. Nil fields match everything.
type IssueFilter struct {
	ReporterID *uuid.UUID
	BusinessID *string
	Status     *models.IssueStatus
}

const issueColumns = `id, reporter_id, business_id, business_name, title, description, category,
	status, priority, total_cost, photo_url, ai_description, ai_confidence, latitude, longitude,
	created_at, updated_at`

func scanIssue(row interface{ Scan(...any) error }) (*models.Issue, error) {
	issue := &models.Issue{}
	err := row.Scan(
		&issue.ID,
		&issue.ReporterID,
		&issue.BusinessID,
		&issue.BusinessName,
		&issue.Title,
		&issue.Description,
		&issue.Category,
		&issue.Status,
		&issue.Priority,
		&issue.TotalCost,
		&issue.PhotoURL,
		&issue.AIDescription,
		&issue.AIConfidence,
		&issue.Latitude,
		&issue.Longitude,
		&issue.CreatedAt,
		&issue.UpdatedAt,
	)
	return issue, err
}

// Create creates a new issue
func (r *IssueRepository) Create(ctx context.Context, issue *models.Issue) error {
	query := `
		INSERT INTO issues (id, reporter_id, business_id, business_name, title, description, category,
			status, priority, total_cost, photo_url, ai_description, ai_confidence, latitude, longitude,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at
	`

	if issue.Status == "" {
		issue.Status = models.IssueStatusReported
	}
	if issue.Priority == "" {
		issue.Priority = models.PriorityMedium
	}

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		issue.ID,
		issue.ReporterID,
		issue.BusinessID,
		issue.BusinessName,
		issue.Title,
		issue.Description,
		issue.Category,
		issue.Status,
		issue.Priority,
		issue.TotalCost,
		issue.PhotoURL,
		issue.AIDescription,
		issue.AIConfidence,
		issue.Latitude,
		issue.Longitude,
		now,
		now,
	).Scan(&issue.CreatedAt, &issue.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create issue: %w", err)
	}
	return nil
}

// GetByID retrieves an issue by ID
func (r *IssueRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	return getIssue(ctx, r.db, id, false)
}

func getIssue(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	issue, err := scanIssue(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issue not found: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	return issue, nil
}

// List returns one page of issues matching filter, newest first, with the total match count
func (r *IssueRepository) List(ctx context.Context, filter IssueFilter, page, pageSize int) ([]*models.Issue, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	where := " WHERE 1=1"
	var args []any
	argIndex := 1

	if filter.ReporterID != nil {
		where += fmt.Sprintf(" AND reporter_id = $%d", argIndex)
		args = append(args, *filter.ReporterID)
		argIndex++
	}
	if filter.BusinessID != nil {
		where += fmt.Sprintf(" AND business_id = $%d", argIndex)
		args = append(args, *filter.BusinessID)
		argIndex++
	}
	if filter.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, string(*filter.Status))
		argIndex++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count issues: %w", err)
	}

	query := `SELECT ` + issueColumns + ` FROM issues` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query issues: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	issues := []*models.Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating issues: %w", err)
	}
	return issues, total, nil
}

// IssuePatch carries the descriptive fields a caller wants to change. Nil
// fields keep their stored value.
type IssuePatch struct {
	Title       *string
	Description *string
	Category    *string
	Priority    *models.Priority
}

// Empty reports whether the patch changes nothing
func (p IssuePatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil && p.Priority == nil
}

// Update writes the supplied descriptive fields of an issue and returns the
// stored row. Fields left nil are not written, so concurrent changes to them,
// such as an accepted proposal raising the priority, survive. Status and cost
// only change through the thread so that every change is logged.
func (r *IssueRepository) Update(ctx context.Context, id uuid.UUID, patch IssuePatch) (*models.Issue, error) {
	query := `
		UPDATE issues
		SET title = COALESCE($2, title), description = COALESCE($3, description),
			category = COALESCE($4, category), priority = COALESCE($5, priority), updated_at = $6
		WHERE id = $1
		RETURNING ` + issueColumns

	var priority *string
	if patch.Priority != nil {
		p := string(*patch.Priority)
		priority = &p
	}

	issue, err := scanIssue(r.db.QueryRowContext(ctx, query,
		id,
		patch.Title,
		patch.Description,
		patch.Category,
		priority,
		time.Now(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issue not found: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update issue: %w", err)
	}
	return issue, nil
}
