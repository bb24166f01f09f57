package validation

import (
	"context"

	"github.com/lattica-ai/chaincore/internal/store"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

// ChainValidator orchestrates the two-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (duplicate ids, agent refs, condition coherence)
type ChainValidator struct {
	jsonSchema *JSONSchemaValidator
	agents     AgentLookup
}

// NewChainValidator creates a ChainValidator.
// agents may be nil to skip agent existence checks.
func NewChainValidator(agents AgentLookup) (*ChainValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &ChainValidator{
		jsonSchema: jsv,
		agents:     agents,
	}, nil
}

// Validate runs the full pipeline and returns an aggregated result.
// Structural errors short-circuit: the semantic stage is skipped.
func (v *ChainValidator) Validate(ctx context.Context, chain *store.Chain) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	v.jsonSchema.ValidateChain(chain, result)
	if !result.Valid() {
		return result
	}

	result.Merge(validateSemantic(ctx, chain, v.agents))
	return result
}
