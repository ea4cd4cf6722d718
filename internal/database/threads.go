package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kevinmaint/maint-api/internal/models"
	"github.com/kevinmaint/maint-api/internal/summary"
)

// ThreadRepository handles thread message persistence and the proposal
// acceptance workflow
type ThreadRepository struct {
	db  *DB
	now func() time.Time
}

// NewThreadRepository creates a new thread repository
func NewThreadRepository(db *DB) *ThreadRepository {
	return &ThreadRepository{db: db, now: time.Now}
}

// AcceptResult is the outcome of accepting a proposal
type AcceptResult struct {
	Message *models.ThreadMessage
	Issue   *models.Issue
	Summary *models.SmartSummary
	// Applied is false when the proposal had already been accepted
	Applied bool
}

// StatusChangeResult is the outcome of appending a status_change message
type StatusChangeResult struct {
	Message *models.ThreadMessage
	Issue   *models.Issue
	Summary *models.SmartSummary
}

const messageColumns = `id, issue_id, author_id, author_type, message, type, attachment_urls, new_status,
	proposal, proposal_accepted, accepted_at, parent_id, delivery_status, read_by, reactions, created_at`

func scanMessage(row interface{ Scan(...any) error }) (*models.ThreadMessage, error) {
	msg := &models.ThreadMessage{}
	var (
		attachments    []string
		newStatus      sql.NullString
		proposalJSON   []byte
		accepted       sql.NullBool
		acceptedAt     sql.NullTime
		parentID       uuid.NullUUID
		deliveryStatus sql.NullString
		readByJSON     []byte
		reactionsJSON  []byte
	)

	err := row.Scan(
		&msg.ID,
		&msg.RequestID,
		&msg.AuthorID,
		&msg.AuthorType,
		&msg.Message,
		&msg.Type,
		pq.Array(&attachments),
		&newStatus,
		&proposalJSON,
		&accepted,
		&acceptedAt,
		&parentID,
		&deliveryStatus,
		&readByJSON,
		&reactionsJSON,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(attachments) > 0 {
		msg.AttachmentURLs = attachments
	}
	if newStatus.Valid {
		s := models.IssueStatus(newStatus.String)
		msg.NewStatus = &s
	}
	if msg.Proposal, err = models.DecodeProposal(proposalJSON); err != nil {
		return nil, fmt.Errorf("message %s: %w", msg.ID, err)
	}
	if accepted.Valid {
		v := accepted.Bool
		msg.ProposalAccepted = &v
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		msg.AcceptedAt = &t
	}
	if parentID.Valid {
		id := parentID.UUID
		msg.ParentID = &id
	}
	if deliveryStatus.Valid {
		ds := models.DeliveryStatus(deliveryStatus.String)
		msg.DeliveryStatus = &ds
	}
	if len(readByJSON) > 0 {
		if err := json.Unmarshal(readByJSON, &msg.ReadBy); err != nil {
			return nil, &models.DecodeError{Document: "read_by", Reason: err.Error()}
		}
	}
	if len(reactionsJSON) > 0 {
		if err := json.Unmarshal(reactionsJSON, &msg.Reactions); err != nil {
			return nil, &models.DecodeError{Document: "reactions", Reason: err.Error()}
		}
	}
	return msg, nil
}

func jsonOrEmptyObject(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return []byte("{}"), nil
	}
	return data, nil
}

// Create inserts a message. Status changes must go through ApplyStatusChange.
func (r *ThreadRepository) Create(ctx context.Context, msg *models.ThreadMessage) error {
	if msg.Type == models.MessageTypeStatusChange {
		return fmt.Errorf("status_change messages must be applied with ApplyStatusChange")
	}
	return insertMessage(ctx, r.db, msg, r.now())
}

func insertMessage(ctx context.Context, q querier, msg *models.ThreadMessage, now time.Time) error {
	query := `
		INSERT INTO thread_messages (id, issue_id, author_id, author_type, message, type, attachment_urls,
			new_status, proposal, proposal_accepted, accepted_at, parent_id, delivery_status, read_by, reactions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	proposalJSON, err := models.EncodeProposal(msg.Proposal)
	if err != nil {
		return err
	}
	readBy, err := jsonOrEmptyObject(msg.ReadBy)
	if err != nil {
		return fmt.Errorf("failed to marshal read receipts: %w", err)
	}
	reactions, err := jsonOrEmptyObject(msg.Reactions)
	if err != nil {
		return fmt.Errorf("failed to marshal reactions: %w", err)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	attachments := msg.AttachmentURLs
	if attachments == nil {
		attachments = []string{}
	}

	var newStatus, deliveryStatus *string
	if msg.NewStatus != nil {
		s := string(*msg.NewStatus)
		newStatus = &s
	}
	if msg.DeliveryStatus != nil {
		s := string(*msg.DeliveryStatus)
		deliveryStatus = &s
	}

	_, err = q.ExecContext(ctx, query,
		msg.ID,
		msg.RequestID,
		msg.AuthorID,
		msg.AuthorType,
		msg.Message,
		msg.Type,
		pq.Array(attachments),
		newStatus,
		proposalJSON,
		msg.ProposalAccepted,
		msg.AcceptedAt,
		msg.ParentID,
		deliveryStatus,
		readBy,
		reactions,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create thread message: %w", err)
	}
	return nil
}

// GetByID retrieves a message by ID
func (r *ThreadRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ThreadMessage, error) {
	return getMessage(ctx, r.db, id, false)
}

func getMessage(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*models.ThreadMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM thread_messages WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	msg, err := scanMessage(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("thread message not found: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread message: %w", err)
	}
	return msg, nil
}

// ListByIssue returns an issue's messages in timeline order
func (r *ThreadRepository) ListByIssue(ctx context.Context, issueID uuid.UUID) ([]*models.ThreadMessage, error) {
	return listMessages(ctx, r.db, issueID)
}

func listMessages(ctx context.Context, q querier, issueID uuid.UUID) ([]*models.ThreadMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM thread_messages WHERE issue_id = $1 ORDER BY created_at, id`

	rows, err := q.QueryContext(ctx, query, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to query thread messages: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	messages := []*models.ThreadMessage{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thread messages: %w", err)
	}
	return messages, nil
}

// SetProposal attaches a proposal to a message that has none yet. Returns
// false when the message already carried a proposal.
func (r *ThreadRepository) SetProposal(ctx context.Context, messageID uuid.UUID, proposal *models.AIProposal) (bool, error) {
	proposalJSON, err := models.EncodeProposal(proposal)
	if err != nil {
		return false, err
	}
	if proposalJSON == nil {
		return false, fmt.Errorf("proposal is required")
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE thread_messages SET proposal = $2 WHERE id = $1 AND proposal IS NULL`,
		messageID, proposalJSON,
	)
	if err != nil {
		return false, fmt.Errorf("failed to set proposal: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM thread_messages WHERE id = $1)`, messageID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check thread message: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("thread message not found: %w", ErrNotFound)
	}
	return false, nil
}

// AddReaction records userID reacting with emoji. Reacting twice is a no-op.
func (r *ThreadRepository) AddReaction(ctx context.Context, messageID uuid.UUID, emoji string, userID uuid.UUID) (*models.ThreadMessage, error) {
	var msg *models.ThreadMessage
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		msg, err = getMessage(ctx, tx, messageID, true)
		if err != nil {
			return err
		}
		if msg.Reactions == nil {
			msg.Reactions = map[string][]uuid.UUID{}
		}
		for _, id := range msg.Reactions[emoji] {
			if id == userID {
				return nil
			}
		}
		msg.Reactions[emoji] = append(msg.Reactions[emoji], userID)

		data, err := json.Marshal(msg.Reactions)
		if err != nil {
			return fmt.Errorf("failed to marshal reactions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE thread_messages SET reactions = $2 WHERE id = $1`, messageID, data); err != nil {
			return fmt.Errorf("failed to update reactions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// MarkRead records a read receipt for userID
func (r *ThreadRepository) MarkRead(ctx context.Context, messageID, userID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE thread_messages SET read_by = read_by || jsonb_build_object($2::text, $3::text) WHERE id = $1`,
		messageID, userID.String(), r.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("thread message not found: %w", ErrNotFound)
	}
	return nil
}

// AcceptProposal applies a message's proposal to its issue. In one
// transaction it flips proposal_accepted to true, stamps accepted_at, applies
// the proposed status, priority and cost, writes a work-log entry and
// refreshes the smart summary.
// Accepting an already accepted proposal changes nothing.
func (r *ThreadRepository) AcceptProposal(ctx context.Context, messageID, actorID uuid.UUID) (*AcceptResult, error) {
	result := &AcceptResult{}
	now := r.now()

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		msg, err := getMessage(ctx, tx, messageID, true)
		if err != nil {
			return err
		}
		if msg.Proposal == nil {
			return ErrNoProposal
		}
		if msg.ProposalAccepted != nil {
			if !*msg.ProposalAccepted {
				return fmt.Errorf("cannot accept a dismissed proposal: %w", ErrProposalConflict)
			}
			result.Message = msg
			result.Issue, err = getIssue(ctx, tx, msg.RequestID, false)
			if err != nil {
				return err
			}
			result.Summary, err = getSummary(ctx, tx, msg.RequestID)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE thread_messages SET proposal_accepted = TRUE, accepted_at = $2 WHERE id = $1`,
			messageID, now,
		); err != nil {
			return fmt.Errorf("failed to accept proposal: %w", err)
		}
		accepted := true
		msg.ProposalAccepted = &accepted
		acceptedAt := now
		msg.AcceptedAt = &acceptedAt

		p := msg.Proposal
		var status, priority *string
		if p.ProposedStatus != nil {
			s := string(*p.ProposedStatus)
			status = &s
		}
		if p.ProposedPriority != nil {
			s := string(*p.ProposedPriority)
			priority = &s
		}
		cost := 0.0
		if p.ExtractedCost != nil {
			cost = *p.ExtractedCost
		}

		issue, err := scanIssue(tx.QueryRowContext(ctx, `
			UPDATE issues
			SET status = COALESCE($2, status), priority = COALESCE($3, priority),
				total_cost = total_cost + $4, updated_at = $5
			WHERE id = $1
			RETURNING `+issueColumns,
			msg.RequestID, status, priority, cost, now,
		))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("issue not found: %w", ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to apply proposal to issue: %w", err)
		}

		msgID := msg.ID
		entry := &models.WorkLogEntry{
			ID:        uuid.New(),
			IssueID:   msg.RequestID,
			MessageID: &msgID,
			ActorID:   actorID,
			Action:    models.WorkLogProposalAccepted,
			Details:   describeProposal(p),
			CreatedAt: now,
		}
		if err := insertWorkLog(ctx, tx, entry); err != nil {
			return err
		}

		sum, err := recomputeSummary(ctx, tx, issue, now)
		if err != nil {
			return err
		}

		result.Message = msg
		result.Issue = issue
		result.Summary = sum
		result.Applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DismissProposal marks a proposal as dismissed without touching the issue.
// Returns false when it was already dismissed.
func (r *ThreadRepository) DismissProposal(ctx context.Context, messageID uuid.UUID) (*models.ThreadMessage, bool, error) {
	var (
		msg     *models.ThreadMessage
		changed bool
	)
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		msg, err = getMessage(ctx, tx, messageID, true)
		if err != nil {
			return err
		}
		if msg.Proposal == nil {
			return ErrNoProposal
		}
		if msg.ProposalAccepted != nil {
			if *msg.ProposalAccepted {
				return fmt.Errorf("cannot dismiss an accepted proposal: %w", ErrProposalConflict)
			}
			return nil
		}

		if _, err := tx.ExecContext(ctx, `UPDATE thread_messages SET proposal_accepted = FALSE WHERE id = $1`, messageID); err != nil {
			return fmt.Errorf("failed to dismiss proposal: %w", err)
		}
		dismissed := false
		msg.ProposalAccepted = &dismissed
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return msg, changed, nil
}

// ApplyStatusChange appends a status_change message and applies its status to
// the issue, logging the change and refreshing the smart summary.
func (r *ThreadRepository) ApplyStatusChange(ctx context.Context, msg *models.ThreadMessage) (*StatusChangeResult, error) {
	if msg.Type != models.MessageTypeStatusChange || msg.NewStatus == nil {
		return nil, fmt.Errorf("message is not a status change")
	}

	result := &StatusChangeResult{Message: msg}
	now := r.now()

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		previous, err := getIssue(ctx, tx, msg.RequestID, true)
		if err != nil {
			return err
		}
		if err := insertMessage(ctx, tx, msg, now); err != nil {
			return err
		}

		issue, err := scanIssue(tx.QueryRowContext(ctx, `
			UPDATE issues SET status = $2, updated_at = $3
			WHERE id = $1
			RETURNING `+issueColumns,
			msg.RequestID, string(*msg.NewStatus), now,
		))
		if err != nil {
			return fmt.Errorf("failed to update issue status: %w", err)
		}

		msgID := msg.ID
		entry := &models.WorkLogEntry{
			ID:        uuid.New(),
			IssueID:   msg.RequestID,
			MessageID: &msgID,
			ActorID:   msg.AuthorID,
			Action:    models.WorkLogStatusChanged,
			Details:   fmt.Sprintf("status %s -> %s", previous.Status, *msg.NewStatus),
			CreatedAt: now,
		}
		if err := insertWorkLog(ctx, tx, entry); err != nil {
			return err
		}

		sum, err := recomputeSummary(ctx, tx, issue, now)
		if err != nil {
			return err
		}
		result.Issue = issue
		result.Summary = sum
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// recomputeSummary folds the issue's thread into a fresh summary and stores it
func recomputeSummary(ctx context.Context, q querier, issue *models.Issue, now time.Time) (*models.SmartSummary, error) {
	messages, err := listMessages(ctx, q, issue.ID)
	if err != nil {
		return nil, err
	}
	sum := summary.Recompute(issue.ID, messages, issue.Status, now)
	if err := upsertSummary(ctx, q, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

func describeProposal(p *models.AIProposal) string {
	details := "accepted proposal:"
	if p.ProposedStatus != nil {
		details += fmt.Sprintf(" status=%s", *p.ProposedStatus)
	}
	if p.ProposedPriority != nil {
		details += fmt.Sprintf(" priority=%s", *p.ProposedPriority)
	}
	if p.ExtractedCost != nil {
		details += fmt.Sprintf(" cost=%.2f", *p.ExtractedCost)
	}
	if p.ExtractedVendor != nil {
		details += fmt.Sprintf(" vendor=%q", *p.ExtractedVendor)
	}
	if p.InvoiceNumber != nil {
		details += fmt.Sprintf(" invoice=%s", *p.InvoiceNumber)
	}
	if !p.HasChanges() {
		details += " no changes"
	}
	return details
}
