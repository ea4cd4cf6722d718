package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"

	logpkg "github.com/kevinmaint/maint-api/internal/logger"
	"github.com/kevinmaint/maint-api/internal/models"
	"github.com/kevinmaint/maint-api/internal/request"
)

const (
	// OpenAIEngineName is the registry name of the OpenAI-backed engine
	OpenAIEngineName = "openai"
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 30 * time.Second

	// maxContextMessages bounds how much thread history goes into the prompt
	maxContextMessages = 10
	// previewLen caps prompt and response text in debug logs and history lines
	previewLen = 200

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"
)

// ErrMissingAPIKey is returned when the OpenAI backend is selected without a key
var ErrMissingAPIKey = errors.New("openai api key is required")

// OpenAIConfig configures the OpenAI backend
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	DebugMode bool
}

// OpenAIEngine implements ProposalEngine and ImageAnalyzer with OpenAI chat completions
type OpenAIEngine struct {
	client    openai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAIEngine creates an OpenAI-backed engine
func NewOpenAIEngine(cfg OpenAIConfig, logger *zap.Logger) *OpenAIEngine {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}

	httpClient := &http.Client{
		Timeout: DefaultTimeout,
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(httpClient),
	)

	return &OpenAIEngine{
		client:    client,
		model:     cfg.Model,
		logger:    logger,
		debugMode: cfg.DebugMode,
	}
}

func (e *OpenAIEngine) Name() string {
	return OpenAIEngineName
}

const proposalSystemPrompt = `You are a maintenance coordinator for restaurants. You read one new message in a repair thread and propose changes to the issue.
Respond with JSON only, using these keys:
  proposed_status: one of reported, in_progress, scheduled, waiting_parts, completed, closed (omit if no change)
  proposed_priority: one of low, medium, high, critical (omit if no change)
  extracted_cost: number in US dollars taken from a receipt or invoice (omit if none)
  extracted_vendor: vendor name from a receipt or invoice (omit if none)
  invoice_number: invoice number (omit if none)
  next_action: one short sentence describing what should happen next
  risk_level: one of low, medium, high
  confidence: number between 0 and 1
  reasoning: one or two sentences explaining the proposal`

// Propose asks the model for a proposal and coerces the answer into a valid AIProposal
func (e *OpenAIEngine) Propose(ctx context.Context, msg *models.ThreadMessage, issueCtx *models.IssueContext) (*models.AIProposal, error) {
	if msg == nil {
		return nil, fmt.Errorf("message is required")
	}

	prompt := buildProposalPrompt(msg, issueCtx)
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(proposalSystemPrompt),
		openai.UserMessage(prompt),
	}

	content, err := e.complete(ctx, "propose", msg.RequestID.String(), prompt, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to generate proposal: %w", err)
	}
	return parseProposalResponse(content)
}

// AnalyzeMaintenanceImage classifies an issue photo with the vision model
func (e *OpenAIEngine) AnalyzeMaintenanceImage(ctx context.Context, image []byte, mimeType string) (*models.ImageAnalysis, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("image is required")
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("unsupported image type: %s", mimeType)
	}

	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	prompt := `Describe the maintenance problem in this photo. Respond with JSON only:
{"description": "...", "category": "plumbing|electrical|hvac|refrigeration|kitchen_equipment|structural|pest|cleaning|other", "priority": "low|medium|high|critical", "confidence": 0.0-1.0}`

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("You are an expert facilities technician who triages restaurant maintenance issues from photos."),
		openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(prompt),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
		}),
	}

	content, err := e.complete(ctx, "analyze_image", "", prompt, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze image: %w", err)
	}
	return parseImageAnalysisResponse(content)
}

func (e *OpenAIEngine) complete(ctx context.Context, operation, issueID, prompt string, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	req := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(e.model),
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	requestID := request.RequestID(ctx)
	if e.logger != nil && e.debugMode {
		e.logger.Debug("llm_api_request",
			zap.String("operation", operation),
			zap.String("model", e.model),
			zap.Int("prompt_length", len(prompt)),
			zap.String("prompt_preview", logpkg.Clean(prompt, previewLen)),
			zap.String("issue_id", issueID),
			zap.String("request_id", requestID),
		)
	}

	start := time.Now()
	resp, err := e.client.Chat.Completions.New(ctx, req)
	latency := time.Since(start)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("llm_api_error",
				zap.String("operation", operation),
				zap.String("model", e.model),
				zap.Error(err),
				zap.String("issue_id", issueID),
				zap.String("request_id", requestID),
				zap.Int64("latency_ms", latency.Milliseconds()),
			)
		}
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return "", apiErr
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(ErrNoChoicesInResponse)
	}

	content := resp.Choices[0].Message.Content
	if e.logger != nil && e.debugMode {
		e.logger.Debug("llm_api_response",
			zap.String("operation", operation),
			zap.String("model", e.model),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", logpkg.Clean(content, previewLen)),
			zap.String("issue_id", issueID),
			zap.String("request_id", requestID),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}
	return content, nil
}

func buildProposalPrompt(msg *models.ThreadMessage, issueCtx *models.IssueContext) string {
	var b strings.Builder

	if issueCtx != nil && issueCtx.Issue != nil {
		is := issueCtx.Issue
		b.WriteString("Issue:\n")
		fmt.Fprintf(&b, "  title: %s\n", is.Title)
		if is.Description != "" {
			fmt.Fprintf(&b, "  description: %s\n", is.Description)
		}
		if is.Category != "" {
			fmt.Fprintf(&b, "  category: %s\n", is.Category)
		}
		fmt.Fprintf(&b, "  status: %s\n", is.Status)
		fmt.Fprintf(&b, "  priority: %s\n", is.Priority)
		fmt.Fprintf(&b, "  total_cost: %.2f\n", is.TotalCost)
		if is.BusinessName != nil {
			fmt.Fprintf(&b, "  business: %s\n", *is.BusinessName)
		}
	}

	if issueCtx != nil && issueCtx.Summary != nil {
		fmt.Fprintf(&b, "Current risk: %s\nCurrent next action: %s\n", issueCtx.Summary.RiskLevel, issueCtx.Summary.NextAction)
	}

	if issueCtx != nil && len(issueCtx.RecentMessages) > 0 {
		history := issueCtx.RecentMessages
		if len(history) > maxContextMessages {
			history = history[len(history)-maxContextMessages:]
		}
		b.WriteString("Recent thread messages (oldest first):\n")
		for _, m := range history {
			fmt.Fprintf(&b, "  [%s %s] %s\n", m.AuthorType, m.Type, logpkg.Clean(m.Message, previewLen))
		}
	}

	fmt.Fprintf(&b, "New message (type %s):\n%s\n", msg.Type, msg.Message)
	if len(msg.AttachmentURLs) > 0 {
		fmt.Fprintf(&b, "Attachments: %d\n", len(msg.AttachmentURLs))
	}
	return b.String()
}

// extractJSONObject trims any prose a model wraps around its JSON answer
func extractJSONObject(raw string) string {
	if len(raw) > 0 && raw[0] != '{' {
		start := bytes.IndexByte([]byte(raw), '{')
		end := bytes.LastIndexByte([]byte(raw), '}')
		if start != -1 && end != -1 && end > start {
			return raw[start : end+1]
		}
	}
	return raw
}

func parseProposalResponse(content string) (*models.AIProposal, error) {
	var raw struct {
		ProposedStatus   string   `json:"proposed_status"`
		ProposedPriority string   `json:"proposed_priority"`
		ExtractedCost    *float64 `json:"extracted_cost"`
		ExtractedVendor  string   `json:"extracted_vendor"`
		InvoiceNumber    string   `json:"invoice_number"`
		NextAction       string   `json:"next_action"`
		RiskLevel        string   `json:"risk_level"`
		Confidence       float64  `json:"confidence"`
		Reasoning        string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse proposal response: %w", err)
	}

	p := &models.AIProposal{
		RiskLevel:  models.RiskLevel(strings.ToLower(strings.TrimSpace(raw.RiskLevel))),
		Confidence: clampConfidence(raw.Confidence),
		Reasoning:  strings.TrimSpace(raw.Reasoning),
	}
	if !p.RiskLevel.Valid() {
		p.RiskLevel = models.RiskLow
	}
	if s := models.IssueStatus(strings.ToLower(strings.TrimSpace(raw.ProposedStatus))); s.Valid() {
		p.ProposedStatus = &s
	}
	if pr := models.Priority(strings.ToLower(strings.TrimSpace(raw.ProposedPriority))); pr.Valid() {
		p.ProposedPriority = &pr
	}
	if raw.ExtractedCost != nil && *raw.ExtractedCost > 0 {
		cost := *raw.ExtractedCost
		p.ExtractedCost = &cost
	}
	if v := strings.TrimSpace(raw.ExtractedVendor); v != "" {
		p.ExtractedVendor = &v
	}
	if v := strings.TrimSpace(raw.InvoiceNumber); v != "" {
		p.InvoiceNumber = &v
	}
	if v := strings.TrimSpace(raw.NextAction); v != "" {
		p.NextAction = &v
	}
	if p.Reasoning == "" {
		p.Reasoning = "No reasoning provided."
	}
	return p, nil
}

func parseImageAnalysisResponse(content string) (*models.ImageAnalysis, error) {
	var raw struct {
		Description string  `json:"description"`
		Category    string  `json:"category"`
		Priority    string  `json:"priority"`
		Confidence  float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse image analysis response: %w", err)
	}

	a := &models.ImageAnalysis{
		Description: strings.TrimSpace(raw.Description),
		Category:    strings.ToLower(strings.TrimSpace(raw.Category)),
		Priority:    models.Priority(strings.ToLower(strings.TrimSpace(raw.Priority))),
		Confidence:  clampConfidence(raw.Confidence),
	}
	if a.Category == "" {
		a.Category = "other"
	}
	if !a.Priority.Valid() {
		a.Priority = models.PriorityMedium
	}
	if a.Description == "" {
		return nil, fmt.Errorf("image analysis returned no description")
	}
	return a, nil
}

func clampConfidence(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
