package ai

import (
	"context"

	"github.com/kevinmaint/maint-api/internal/models"
)

// ProposalEngine turns a new thread message, read against the issue it belongs
// to, into a structured change proposal.
type ProposalEngine interface {
	// Name identifies the backend in logs and metrics
	Name() string

	// Propose analyzes msg in the context of its issue. It returns a nil
	// proposal when the message is not something the engine comments on.
	Propose(ctx context.Context, msg *models.ThreadMessage, issueCtx *models.IssueContext) (*models.AIProposal, error)
}

// ImageAnalyzer classifies a photo of a maintenance problem
type ImageAnalyzer interface {
	AnalyzeMaintenanceImage(ctx context.Context, image []byte, mimeType string) (*models.ImageAnalysis, error)
}

// EngineFactory creates a proposal engine from string settings
type EngineFactory func(config map[string]string) (ProposalEngine, error)

// EngineRegistry stores available proposal backends
type EngineRegistry struct {
	engines map[string]EngineFactory
}

// NewEngineRegistry creates a registry with the built-in backends registered
func NewEngineRegistry() *EngineRegistry {
	r := &EngineRegistry{engines: make(map[string]EngineFactory)}
	r.Register(KeywordEngineName, func(map[string]string) (ProposalEngine, error) {
		return NewKeywordEngine(), nil
	})
	r.Register(OpenAIEngineName, func(cfg map[string]string) (ProposalEngine, error) {
		if cfg["api_key"] == "" {
			return nil, ErrMissingAPIKey
		}
		return NewOpenAIEngine(OpenAIConfig{
			APIKey:  cfg["api_key"],
			BaseURL: cfg["base_url"],
			Model:   cfg["model"],
		}, nil), nil
	})
	return r
}

// Register registers an engine factory
func (r *EngineRegistry) Register(name string, factory EngineFactory) {
	r.engines[name] = factory
}

// GetEngine builds the engine registered under name
func (r *EngineRegistry) GetEngine(name string, config map[string]string) (ProposalEngine, error) {
	factory, ok := r.engines[name]
	if !ok {
		return nil, &ErrEngineNotFound{Name: name}
	}
	return factory(config)
}

// ErrEngineNotFound is returned when no engine is registered under a name
type ErrEngineNotFound struct {
	Name string
}

func (e *ErrEngineNotFound) Error() string {
	return "proposal engine not found: " + e.Name
}
