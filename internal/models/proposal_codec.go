package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ProposalSchemaVersion is the version written into every persisted proposal document
const ProposalSchemaVersion = 1

const proposalSchema = `{
  "type": "object",
  "required": ["schema_version", "proposal"],
  "properties": {
    "schema_version": {"type": "integer", "enum": [1]},
    "proposal": {
      "type": "object",
      "required": ["risk_level", "confidence", "reasoning"],
      "properties": {
        "proposed_status": {"type": "string", "enum": ["reported", "in_progress", "scheduled", "waiting_parts", "completed", "closed"]},
        "proposed_priority": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
        "extracted_cost": {"type": "number", "minimum": 0},
        "extracted_vendor": {"type": "string"},
        "invoice_number": {"type": "string"},
        "next_action": {"type": "string"},
        "risk_level": {"type": "string", "enum": ["low", "medium", "high"]},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1},
        "reasoning": {"type": "string"}
      }
    }
  }
}`

var (
	proposalSchemaOnce     sync.Once
	compiledProposalSchema *gojsonschema.Schema
	proposalSchemaErr      error
)

// DecodeError reports a persisted document that does not satisfy its contract
type DecodeError struct {
	Document string
	Field    string
	Reason   string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode %s: %s", e.Document, e.Reason)
	}
	return fmt.Sprintf("decode %s: field %s: %s", e.Document, e.Field, e.Reason)
}

type proposalEnvelope struct {
	SchemaVersion int         `json:"schema_version"`
	Proposal      *AIProposal `json:"proposal"`
}

func loadProposalSchema() (*gojsonschema.Schema, error) {
	proposalSchemaOnce.Do(func() {
		compiledProposalSchema, proposalSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(proposalSchema))
	})
	return compiledProposalSchema, proposalSchemaErr
}

// EncodeProposal serializes a proposal into its versioned document form.
// A nil proposal encodes to nil.
func EncodeProposal(p *AIProposal) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(proposalEnvelope{SchemaVersion: ProposalSchemaVersion, Proposal: p})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal proposal: %w", err)
	}
	return data, nil
}

// DecodeProposal parses a versioned proposal document. Empty input and JSON null
// decode to nil; anything else that violates the schema is a *DecodeError.
func DecodeProposal(data []byte) (*AIProposal, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	schema, err := loadProposalSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile proposal schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, &DecodeError{Document: "proposal", Reason: err.Error()}
	}
	if !result.Valid() {
		first := result.Errors()[0]
		reasons := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			reasons = append(reasons, e.String())
		}
		return nil, &DecodeError{
			Document: "proposal",
			Field:    first.Field(),
			Reason:   strings.Join(reasons, "; "),
		}
	}

	var env proposalEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Document: "proposal", Reason: err.Error()}
	}
	return env.Proposal, nil
}
