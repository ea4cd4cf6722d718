package ai

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kevinmaint/maint-api/internal/models"
)

// KeywordEngineName is the registry name of the rule-based engine
const KeywordEngineName = "keyword"

const (
	receiptConfidence  = 0.85
	keywordConfidence  = 0.7
	fallbackConfidence = 0.3
)

var (
	totalPattern    = regexp.MustCompile(`(?i)\b(?:grand\s+total|total\s+due|amount\s+due|balance\s+due|total|amount)\b[^0-9$\n]{0,20}\$?\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
	dollarPattern   = regexp.MustCompile(`\$\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
	vendorPattern   = regexp.MustCompile(`(?i)\b(?:vendor|from|company|billed\s+by)\s*[:\-]\s*([^\n,;]+)`)
	invoicePattern  = regexp.MustCompile(`(?i)\binvoice\s*(?:#|no\.?|number)\s*[:\-]?\s*([A-Z0-9][A-Z0-9\-]{2,})`)
	urgentPattern   = regexp.MustCompile(`(?i)\b(?:urgent|emergency|asap|immediately|flooding|gas\s+leak|fire)\b`)
	finishedPattern = regexp.MustCompile(`(?i)\b(?:completed|complete|finished|fixed|repaired|resolved)\b`)
)

// KeywordEngine is a deterministic rule-based ProposalEngine. It stands in for
// a real model and is what runs when no AI backend is configured.
type KeywordEngine struct{}

// NewKeywordEngine creates a keyword engine
func NewKeywordEngine() *KeywordEngine {
	return &KeywordEngine{}
}

func (e *KeywordEngine) Name() string {
	return KeywordEngineName
}

// Propose applies the rules in order: receipts and invoices with a readable
// total, completion keywords, urgency keywords, then a generic acknowledgment.
func (e *KeywordEngine) Propose(_ context.Context, msg *models.ThreadMessage, issueCtx *models.IssueContext) (*models.AIProposal, error) {
	if msg == nil {
		return nil, fmt.Errorf("message is required")
	}
	text := msg.Message

	if msg.Type == models.MessageTypeReceipt || msg.Type == models.MessageTypeInvoice {
		if p := receiptProposal(msg.Type, text); p != nil {
			return p, nil
		}
	}

	if finishedPattern.MatchString(text) && !alreadyDone(issueCtx) {
		status := models.IssueStatusCompleted
		return &models.AIProposal{
			ProposedStatus: &status,
			NextAction:     strPtr("Confirm the repair and close the issue"),
			RiskLevel:      models.RiskLow,
			Confidence:     keywordConfidence,
			Reasoning:      "The message says the work has been completed.",
		}, nil
	}

	if urgentPattern.MatchString(text) {
		priority := models.PriorityCritical
		return &models.AIProposal{
			ProposedPriority: &priority,
			NextAction:       strPtr("Dispatch a technician as soon as possible"),
			RiskLevel:        models.RiskHigh,
			Confidence:       keywordConfidence,
			Reasoning:        "The message describes an urgent or emergency situation.",
		}, nil
	}

	return &models.AIProposal{
		RiskLevel:  currentRisk(issueCtx),
		Confidence: fallbackConfidence,
		Reasoning:  "Noted. Nothing in this message suggests a status, priority or cost change.",
	}, nil
}

func receiptProposal(msgType models.MessageType, text string) *models.AIProposal {
	total, ok := extractTotal(text)
	if !ok {
		return nil
	}

	status := models.IssueStatusCompleted
	p := &models.AIProposal{
		ProposedStatus: &status,
		ExtractedCost:  &total,
		NextAction:     strPtr("Verify the charge and close the issue"),
		RiskLevel:      models.RiskLow,
		Confidence:     receiptConfidence,
	}
	if m := vendorPattern.FindStringSubmatch(text); m != nil {
		vendor := strings.TrimSpace(m[1])
		if vendor != "" {
			p.ExtractedVendor = &vendor
		}
	}
	if m := invoicePattern.FindStringSubmatch(text); m != nil {
		p.InvoiceNumber = strPtr(m[1])
	}

	p.Reasoning = fmt.Sprintf("The %s shows a total of $%.2f", msgType, total)
	if p.ExtractedVendor != nil {
		p.Reasoning += " from " + *p.ExtractedVendor
	}
	p.Reasoning += ", which indicates the work was paid for."
	return p
}

// extractTotal prefers an explicitly labelled total and otherwise takes the
// largest dollar amount in the text.
func extractTotal(text string) (float64, bool) {
	if m := totalPattern.FindStringSubmatch(text); m != nil {
		if v, ok := parseAmount(m[1]); ok {
			return v, true
		}
	}

	best, found := 0.0, false
	for _, m := range dollarPattern.FindAllStringSubmatch(text, -1) {
		if v, ok := parseAmount(m[1]); ok && v > best {
			best, found = v, true
		}
	}
	return best, found
}

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func alreadyDone(issueCtx *models.IssueContext) bool {
	if issueCtx == nil || issueCtx.Issue == nil {
		return false
	}
	s := issueCtx.Issue.Status
	return s == models.IssueStatusCompleted || s == models.IssueStatusClosed
}

func currentRisk(issueCtx *models.IssueContext) models.RiskLevel {
	if issueCtx != nil && issueCtx.Summary != nil && issueCtx.Summary.RiskLevel.Valid() {
		return issueCtx.Summary.RiskLevel
	}
	return models.RiskLow
}

func strPtr(s string) *string {
	return &s
}
