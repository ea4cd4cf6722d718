package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kevinmaint/maint-api/internal/models"
)

func chatCompletionServer(t *testing.T, content string, gotBody *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if gotBody != nil {
			*gotBody = string(body)
		}
		resp := map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIEngine_Propose(t *testing.T) {
	t.Parallel()

	var body string
	srv := chatCompletionServer(t, `{"proposed_status":"scheduled","risk_level":"medium","confidence":0.8,"next_action":"Confirm Tuesday visit","reasoning":"Technician booked."}`, &body)
	engine := NewOpenAIEngine(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL}, nil)

	issueCtx := &models.IssueContext{
		Issue: &models.Issue{Title: "Walk-in cooler warm", Status: models.IssueStatusReported, Priority: models.PriorityHigh},
	}
	msg := &models.ThreadMessage{Type: models.MessageTypeText, Message: "Tech booked for Tuesday 9am", AuthorType: models.AuthorTypeUser}

	p, err := engine.Propose(context.Background(), msg, issueCtx)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if p.ProposedStatus == nil || *p.ProposedStatus != models.IssueStatusScheduled {
		t.Errorf("status = %v, want scheduled", p.ProposedStatus)
	}
	if p.RiskLevel != models.RiskMedium || p.Confidence != 0.8 {
		t.Errorf("risk/confidence = %s/%v", p.RiskLevel, p.Confidence)
	}
	if !strings.Contains(body, "Walk-in cooler warm") || !strings.Contains(body, "Tech booked for Tuesday 9am") {
		t.Error("request should carry the issue context and the new message")
	}
	if !strings.Contains(body, `"json_object"`) {
		t.Error("request should ask for a JSON response format")
	}
}

func TestOpenAIEngine_AnalyzeMaintenanceImage(t *testing.T) {
	t.Parallel()

	var body string
	srv := chatCompletionServer(t, `{"description":"Leaking pipe under sink","category":"Plumbing","priority":"high","confidence":0.92}`, &body)
	engine := NewOpenAIEngine(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL}, nil)

	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	a, err := engine.AnalyzeMaintenanceImage(context.Background(), jpeg, "")
	if err != nil {
		t.Fatalf("AnalyzeMaintenanceImage() error = %v", err)
	}
	if a.Category != "plumbing" || a.Priority != models.PriorityHigh || a.Confidence != 0.92 {
		t.Errorf("analysis = %+v", a)
	}
	if !strings.Contains(body, "data:image/jpeg;base64,") {
		t.Error("request should inline the image as a data URL")
	}

	if _, err := engine.AnalyzeMaintenanceImage(context.Background(), nil, ""); err == nil {
		t.Error("expected error for empty image")
	}
	if _, err := engine.AnalyzeMaintenanceImage(context.Background(), []byte("plain text"), ""); err == nil {
		t.Error("expected error for non-image payload")
	}
}

func TestParseProposalResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		check   func(*testing.T, *models.AIProposal)
		wantErr bool
	}{
		{
			name:    "full proposal",
			content: `{"proposed_status":"completed","proposed_priority":"low","extracted_cost":57.33,"extracted_vendor":"CoolCo","invoice_number":"A-1","next_action":"Close it","risk_level":"low","confidence":0.9,"reasoning":"Paid."}`,
			check: func(t *testing.T, p *models.AIProposal) {
				if p.ExtractedCost == nil || *p.ExtractedCost != 57.33 {
					t.Errorf("cost = %v", p.ExtractedCost)
				}
				if p.ExtractedVendor == nil || *p.ExtractedVendor != "CoolCo" {
					t.Errorf("vendor = %v", p.ExtractedVendor)
				}
			},
		},
		{
			name:    "invalid enums and ranges are coerced",
			content: `{"proposed_status":"done","proposed_priority":"urgent","extracted_cost":-5,"risk_level":"extreme","confidence":7}`,
			check: func(t *testing.T, p *models.AIProposal) {
				if p.ProposedStatus != nil || p.ProposedPriority != nil || p.ExtractedCost != nil {
					t.Errorf("invalid fields should be dropped: %+v", p)
				}
				if p.RiskLevel != models.RiskLow {
					t.Errorf("risk = %s, want low", p.RiskLevel)
				}
				if p.Confidence != 1 {
					t.Errorf("confidence = %v, want clamped to 1", p.Confidence)
				}
				if p.Reasoning == "" {
					t.Error("reasoning should get a default")
				}
			},
		},
		{
			name:    "json wrapped in prose",
			content: "Here you go: {\"risk_level\":\"high\",\"confidence\":0.5,\"reasoning\":\"r\"} thanks",
			check: func(t *testing.T, p *models.AIProposal) {
				if p.RiskLevel != models.RiskHigh {
					t.Errorf("risk = %s, want high", p.RiskLevel)
				}
			},
		},
		{
			name:    "not json",
			content: "I cannot help with that",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := parseProposalResponse(tt.content)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, p)
			}
		})
	}
}

func TestBuildProposalPrompt_LimitsHistory(t *testing.T) {
	t.Parallel()

	var history []*models.ThreadMessage
	for i := 0; i < 15; i++ {
		history = append(history, &models.ThreadMessage{Type: models.MessageTypeText, Message: "msg-" + string(rune('a'+i))})
	}
	prompt := buildProposalPrompt(
		&models.ThreadMessage{Type: models.MessageTypeText, Message: "latest"},
		&models.IssueContext{Issue: &models.Issue{Title: "Fryer"}, RecentMessages: history},
	)

	if strings.Contains(prompt, "msg-a") {
		t.Error("oldest messages should be dropped from the prompt")
	}
	if !strings.Contains(prompt, "msg-o") || !strings.Contains(prompt, "latest") {
		t.Error("prompt should include the newest history and the new message")
	}
}
