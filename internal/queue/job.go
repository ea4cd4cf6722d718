package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeProposalAnalysis asks a proposal engine to analyze one thread message
	JobTypeProposalAnalysis JobType = "proposal_analysis"
	// JobTypeSummaryRecompute rebuilds an issue's smart summary from its thread
	JobTypeSummaryRecompute JobType = "summary_recompute"
)

// DefaultMaxRetries is the retry budget of a new job
const DefaultMaxRetries = 3

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID      `json:"id"`
	Type       JobType        `json:"type"`
	IssueID    uuid.UUID      `json:"issue_id"`
	MessageID  *uuid.UUID     `json:"message_id,omitempty"` // set for proposal analysis
	NotBefore  *time.Time     `json:"not_before,omitempty"` // nil = immediate
	NotAfter   *time.Time     `json:"not_after,omitempty"`  // nil = no expiration
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
}

// NewJob creates a new job
func NewJob(jobType JobType, issueID uuid.UUID, messageID *uuid.UUID) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		IssueID:    issueID,
		MessageID:  messageID,
		Metadata:   make(map[string]any),
		CreatedAt:  time.Now(),
		MaxRetries: DefaultMaxRetries,
	}
}

// NewProposalJob creates a proposal_analysis job for a message on an issue
func NewProposalJob(issueID, messageID uuid.UUID) *Job {
	return NewJob(JobTypeProposalAnalysis, issueID, &messageID)
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}
	return true
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}
	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}

// RetryAfter returns a copy of the job scheduled to run again after delay
func (j *Job) RetryAfter(delay time.Duration) *Job {
	next := *j
	next.RetryCount = j.RetryCount + 1
	notBefore := time.Now().Add(delay)
	next.NotBefore = &notBefore
	if j.Metadata != nil {
		next.Metadata = make(map[string]any, len(j.Metadata))
		for k, v := range j.Metadata {
			next.Metadata[k] = v
		}
	}
	return &next
}
