package models

import (
	"testing"
)

func TestThreadMessage_CheckShape(t *testing.T) {
	t.Parallel()

	completed := IssueStatusCompleted
	bogus := IssueStatus("bogus")

	tests := []struct {
		name    string
		msg     ThreadMessage
		wantErr bool
	}{
		{
			name: "text with body",
			msg:  ThreadMessage{Type: MessageTypeText, Message: "Walk-in cooler is leaking"},
		},
		{
			name:    "text without body",
			msg:     ThreadMessage{Type: MessageTypeText, Message: "   "},
			wantErr: true,
		},
		{
			name: "receipt with attachment",
			msg:  ThreadMessage{Type: MessageTypeReceipt, AttachmentURLs: []string{"https://cdn.example.com/r.jpg"}},
		},
		{
			name:    "receipt without attachment",
			msg:     ThreadMessage{Type: MessageTypeReceipt, Message: "Total $40"},
			wantErr: true,
		},
		{
			name:    "invoice without attachment",
			msg:     ThreadMessage{Type: MessageTypeInvoice},
			wantErr: true,
		},
		{
			name: "status change with status",
			msg:  ThreadMessage{Type: MessageTypeStatusChange, NewStatus: &completed},
		},
		{
			name:    "status change missing status",
			msg:     ThreadMessage{Type: MessageTypeStatusChange},
			wantErr: true,
		},
		{
			name:    "status change with unknown status",
			msg:     ThreadMessage{Type: MessageTypeStatusChange, NewStatus: &bogus},
			wantErr: true,
		},
		{
			name:    "new status on text message",
			msg:     ThreadMessage{Type: MessageTypeText, Message: "done", NewStatus: &completed},
			wantErr: true,
		},
		{
			name:    "unknown type",
			msg:     ThreadMessage{Type: MessageType("sticker"), Message: "hi"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.msg.CheckShape()
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckShape() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestThreadMessage_ProposalState(t *testing.T) {
	t.Parallel()

	yes, no := true, false
	proposal := &AIProposal{RiskLevel: RiskLow, Confidence: 0.5, Reasoning: "r"}

	tests := []struct {
		name     string
		msg      ThreadMessage
		expected string
		accepted bool
	}{
		{"no proposal", ThreadMessage{}, "none", false},
		{"pending", ThreadMessage{Proposal: proposal}, "pending", false},
		{"accepted", ThreadMessage{Proposal: proposal, ProposalAccepted: &yes}, "accepted", true},
		{"dismissed", ThreadMessage{Proposal: proposal, ProposalAccepted: &no}, "dismissed", false},
	}

	for _, tt := range tests {
		if got := tt.msg.ProposalState(); got != tt.expected {
			t.Errorf("%s: expected state %q, got %q", tt.name, tt.expected, got)
		}
		if got := tt.msg.IsAccepted(); got != tt.accepted {
			t.Errorf("%s: expected IsAccepted=%v, got %v", tt.name, tt.accepted, got)
		}
	}
}
