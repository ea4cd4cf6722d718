package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuthorType identifies who wrote a thread message
type AuthorType string

const (
	AuthorTypeUser   AuthorType = "user"
	AuthorTypeAI     AuthorType = "ai"
	AuthorTypeSystem AuthorType = "system"
)

// MessageType identifies the shape of a thread message
type MessageType string

const (
	MessageTypeText         MessageType = "text"
	MessageTypeStatusChange MessageType = "status_change"
	MessageTypePhoto        MessageType = "photo"
	MessageTypeReceipt      MessageType = "receipt"
	MessageTypeInvoice      MessageType = "invoice"
	MessageTypeVoice        MessageType = "voice"
	MessageTypeSystem       MessageType = "system"
)

// DeliveryStatus tracks a message on its way to other participants
type DeliveryStatus string

const (
	DeliverySending   DeliveryStatus = "sending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// ThreadMessage is one entry in an issue's timeline
type ThreadMessage struct {
	ID               uuid.UUID              `json:"id"`
	RequestID        uuid.UUID              `json:"request_id"`
	AuthorID         uuid.UUID              `json:"author_id"`
	AuthorType       AuthorType             `json:"author_type"`
	Message          string                 `json:"message"`
	Type             MessageType            `json:"type"`
	AttachmentURLs   []string               `json:"attachment_urls,omitempty"`
	NewStatus        *IssueStatus           `json:"new_status,omitempty"`
	Proposal         *AIProposal            `json:"proposal,omitempty"`
	ProposalAccepted *bool                  `json:"proposal_accepted,omitempty"`
	AcceptedAt       *time.Time             `json:"accepted_at,omitempty"`
	ParentID         *uuid.UUID             `json:"parent_id,omitempty"`
	DeliveryStatus   *DeliveryStatus        `json:"delivery_status,omitempty"`
	ReadBy           map[string]time.Time   `json:"read_by,omitempty"`
	Reactions        map[string][]uuid.UUID `json:"reactions,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}

// Valid reports whether t is a known message type
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeStatusChange, MessageTypePhoto, MessageTypeReceipt,
		MessageTypeInvoice, MessageTypeVoice, MessageTypeSystem:
		return true
	}
	return false
}

// RequiresAttachment reports whether messages of this type must carry an attachment
func (t MessageType) RequiresAttachment() bool {
	switch t {
	case MessageTypePhoto, MessageTypeReceipt, MessageTypeInvoice, MessageTypeVoice:
		return true
	}
	return false
}

// ProposalState is the tri-state acceptance flag rendered as a label
func (m *ThreadMessage) ProposalState() string {
	switch {
	case m.Proposal == nil:
		return "none"
	case m.ProposalAccepted == nil:
		return "pending"
	case *m.ProposalAccepted:
		return "accepted"
	default:
		return "dismissed"
	}
}

// IsAccepted reports whether the message carries an accepted proposal
func (m *ThreadMessage) IsAccepted() bool {
	return m.Proposal != nil && m.ProposalAccepted != nil && *m.ProposalAccepted
}

// AppliedAt is when the message took effect on its issue: acceptance time for
// proposals, creation time for everything else.
func (m *ThreadMessage) AppliedAt() time.Time {
	if m.IsAccepted() && m.AcceptedAt != nil {
		return *m.AcceptedAt
	}
	return m.CreatedAt
}

// CheckShape verifies the message's type agrees with its optional fields
func (m *ThreadMessage) CheckShape() error {
	if !m.Type.Valid() {
		return fmt.Errorf("invalid message type: %s", m.Type)
	}
	if m.Type.RequiresAttachment() && len(m.AttachmentURLs) == 0 {
		return fmt.Errorf("%s messages require an attachment URL", m.Type)
	}
	if m.Type == MessageTypeStatusChange {
		if m.NewStatus == nil {
			return fmt.Errorf("status_change messages require new_status")
		}
		if !m.NewStatus.Valid() {
			return fmt.Errorf("invalid new_status: %s", *m.NewStatus)
		}
	} else if m.NewStatus != nil {
		return fmt.Errorf("new_status is only allowed on status_change messages")
	}
	if m.Type == MessageTypeText && strings.TrimSpace(m.Message) == "" {
		return fmt.Errorf("text messages require a message body")
	}
	return nil
}
