package models

import (
	"time"

	"github.com/google/uuid"
)

// IssueStatus represents where an issue is in its repair lifecycle
type IssueStatus string

const (
	IssueStatusReported     IssueStatus = "reported"
	IssueStatusInProgress   IssueStatus = "in_progress"
	IssueStatusScheduled    IssueStatus = "scheduled"
	IssueStatusWaitingParts IssueStatus = "waiting_parts"
	IssueStatusCompleted    IssueStatus = "completed"
	IssueStatusClosed       IssueStatus = "closed"
)

// Priority represents how urgently an issue needs attention
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether s is a known issue status
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusReported, IssueStatusInProgress, IssueStatusScheduled,
		IssueStatusWaitingParts, IssueStatusCompleted, IssueStatusClosed:
		return true
	}
	return false
}

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Issue is the maintenance request a thread is attached to
type Issue struct {
	ID            uuid.UUID   `json:"id"`
	ReporterID    uuid.UUID   `json:"reporter_id"`
	BusinessID    *string     `json:"business_id,omitempty"`
	BusinessName  *string     `json:"business_name,omitempty"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Category      string      `json:"category"`
	Status        IssueStatus `json:"status"`
	Priority      Priority    `json:"priority"`
	TotalCost     float64     `json:"total_cost"`
	PhotoURL      *string     `json:"photo_url,omitempty"`
	AIDescription *string     `json:"ai_description,omitempty"`
	AIConfidence  *float64    `json:"ai_confidence,omitempty"`
	Latitude      *float64    `json:"latitude,omitempty"`
	Longitude     *float64    `json:"longitude,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// IssueContext is everything a proposal engine may look at besides the message itself
type IssueContext struct {
	Issue          *Issue           `json:"issue"`
	RecentMessages []*ThreadMessage `json:"recent_messages,omitempty"`
	Summary        *SmartSummary    `json:"summary,omitempty"`
}

// WorkLogEntry is an audit record of a change applied to an issue
type WorkLogEntry struct {
	ID        uuid.UUID  `json:"id"`
	IssueID   uuid.UUID  `json:"issue_id"`
	MessageID *uuid.UUID `json:"message_id,omitempty"`
	ActorID   uuid.UUID  `json:"actor_id"`
	Action    string     `json:"action"`
	Details   string     `json:"details"`
	CreatedAt time.Time  `json:"created_at"`
}

// Work log actions
const (
	WorkLogProposalAccepted = "proposal_accepted"
	WorkLogStatusChanged    = "status_changed"
)

// ImageAnalysis is the vision model's classification of an issue photo
type ImageAnalysis struct {
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Priority    Priority `json:"priority"`
	Confidence  float64  `json:"confidence"`
}
