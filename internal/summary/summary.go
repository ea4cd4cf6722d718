// Package summary folds an issue thread into its rolling SmartSummary.
package summary

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kevinmaint/maint-api/internal/models"
)

// Recompute derives the summary for a thread. Only accepted proposals and
// status_change messages contribute, folded in the order they took effect on
// the issue: a proposal counts from its acceptance, not from when it was
// posted. fallbackStatus is reported when nothing in the thread applied a
// status.
func Recompute(issueID uuid.UUID, messages []*models.ThreadMessage, fallbackStatus models.IssueStatus, now time.Time) models.SmartSummary {
	ordered := make([]*models.ThreadMessage, 0, len(messages))
	for _, m := range messages {
		if m != nil {
			ordered = append(ordered, m)
		}
	}
	SortByApplied(ordered)

	s := models.SmartSummary{
		IssueID:       issueID,
		CurrentStatus: fallbackStatus,
		RiskLevel:     models.RiskLow,
		NextAction:    models.DefaultNextAction,
		UpdatedAt:     now,
	}

	var totalCents int64
	for _, m := range ordered {
		if m.Type == models.MessageTypeStatusChange && m.NewStatus != nil {
			s.CurrentStatus = *m.NewStatus
		}
		if !m.IsAccepted() {
			continue
		}
		p := m.Proposal
		if p.ProposedStatus != nil {
			s.CurrentStatus = *p.ProposedStatus
		}
		if p.ExtractedCost != nil {
			totalCents += toCents(*p.ExtractedCost)
		}
		if p.RiskLevel.Valid() {
			s.RiskLevel = p.RiskLevel
		}
		if p.NextAction != nil && strings.TrimSpace(*p.NextAction) != "" {
			s.NextAction = *p.NextAction
		}
	}
	s.TotalCost = float64(totalCents) / 100

	return s
}

// SortByApplied orders messages by the time they took effect, then by
// created_at, breaking ties by ID so the order is total.
func SortByApplied(messages []*models.ThreadMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		a, b := messages[i], messages[j]
		if at, bt := a.AppliedAt(), b.AppliedAt(); !at.Equal(bt) {
			return at.Before(bt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
