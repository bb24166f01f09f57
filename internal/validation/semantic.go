package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/lattica-ai/chaincore/internal/store"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

// AgentLookup resolves whether an agent identity exists. May be nil to skip
// agent existence checks.
type AgentLookup interface {
	HasAgent(ctx context.Context, agentID string) bool
}

// StoreAgentLookup resolves agents against the persisted agent registry.
type StoreAgentLookup struct {
	store store.Store
}

// NewStoreAgentLookup creates an AgentLookup over the store.
func NewStoreAgentLookup(s store.Store) *StoreAgentLookup {
	return &StoreAgentLookup{store: s}
}

func (l *StoreAgentLookup) HasAgent(ctx context.Context, agentID string) bool {
	agent, err := l.store.GetAgent(ctx, agentID)
	return err == nil && agent != nil
}

// validateSemantic performs semantic analysis the JSON Schema cannot express:
// duplicate step IDs, agent references, condition coherence.
func validateSemantic(ctx context.Context, chain *store.Chain, agents AgentLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	seen := make(map[string]int, len(chain.Steps))
	for i := range chain.Steps {
		step := &chain.Steps[i]
		path := fmt.Sprintf("steps[%d]", i)

		if first, dup := seen[step.ID]; dup {
			result.AddError(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate step id %q (first used by steps[%d])", step.ID, first))
		} else {
			seen[step.ID] = i
		}

		if agents != nil && step.AgentID != "" && !agents.HasAgent(ctx, step.AgentID) {
			result.AddError(path+".agent_id", schema.ErrCodeNotFound,
				fmt.Sprintf("agent %q is not registered", step.AgentID))
		}

		validateStepCondition(step, i, path, result)
	}

	return result
}

// validateStepCondition checks condition/position coherence for one step.
func validateStepCondition(step *schema.Step, index int, path string, result *schema.ValidationResult) {
	cond := step.Condition
	if cond == nil {
		return
	}

	kind := cond.EffectiveKind()

	if kind == schema.ConditionCustom && strings.TrimSpace(cond.Expression) == "" {
		result.AddError(path+".condition.expression", schema.ErrCodeValidation,
			"custom condition requires a non-empty expression")
	}

	if kind != schema.ConditionCustom && strings.TrimSpace(cond.Expression) != "" {
		result.AddWarning(path+".condition.expression", schema.ErrCodeValidation,
			fmt.Sprintf("expression is ignored for kind %q", kind))
	}

	// A first step has no previous result: neither branch kind can ever fire.
	if index == 0 && (kind == schema.ConditionIfSuccess || kind == schema.ConditionIfError) {
		result.AddWarning(path+".condition.kind", schema.ErrCodeValidation,
			fmt.Sprintf("%s on the first step never runs", kind))
	}
}
