package models

import (
	"time"

	"github.com/google/uuid"
)

// RiskLevel grades how risky the situation described in a thread is
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether r is a known risk level
func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// AIProposal is a structured change suggested by the proposal engine for one message
type AIProposal struct {
	ProposedStatus   *IssueStatus `json:"proposed_status,omitempty"`
	ProposedPriority *Priority    `json:"proposed_priority,omitempty"`
	ExtractedCost    *float64     `json:"extracted_cost,omitempty"`
	ExtractedVendor  *string      `json:"extracted_vendor,omitempty"`
	InvoiceNumber    *string      `json:"invoice_number,omitempty"`
	NextAction       *string      `json:"next_action,omitempty"`
	RiskLevel        RiskLevel    `json:"risk_level"`
	Confidence       float64      `json:"confidence"`
	Reasoning        string       `json:"reasoning"`
}

// HasChanges reports whether accepting the proposal would mutate the issue
func (p *AIProposal) HasChanges() bool {
	return p.ProposedStatus != nil || p.ProposedPriority != nil || p.ExtractedCost != nil
}

// DefaultNextAction is shown until a thread has an accepted proposal
const DefaultNextAction = "Add details to begin analysis"

// SmartSummary is the rolling digest shown atop an issue's timeline
type SmartSummary struct {
	IssueID       uuid.UUID   `json:"issue_id"`
	CurrentStatus IssueStatus `json:"current_status"`
	RiskLevel     RiskLevel   `json:"risk_level"`
	TotalCost     float64     `json:"total_cost"`
	NextAction    string      `json:"next_action"`
	UpdatedAt     time.Time   `json:"updated_at"`
}
