package engine

import (
	"context"
	"sort"

	"github.com/lattica-ai/chaincore/internal/expressions"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

// Mapper applies a step's input and output mappings against the execution's
// variable bag and step-result history.
type Mapper struct {
	resolver *expressions.Resolver
}

// NewMapper creates a Mapper.
func NewMapper() *Mapper {
	return &Mapper{resolver: expressions.NewResolver()}
}

// ResolveInput builds the input object for a step. With no inputMapping the
// step receives the entire variable bag. Otherwise each (targetKey,
// sourcePath) pair is resolved against the variable bag and prior step
// results; missing paths resolve to nil rather than erroring.
//
// Keys are applied in sorted order so resolution is deterministic.
func (m *Mapper) ResolveInput(ctx context.Context, step *schema.Step, variables map[string]any, stepResults []schema.StepResult) (map[string]any, error) {
	if len(step.InputMapping) == 0 {
		bag := make(map[string]any, len(variables))
		for k, v := range variables {
			bag[k] = v
		}
		return bag, nil
	}

	doc := expressions.InputDocument(variables, stepResults)
	input := make(map[string]any, len(step.InputMapping))

	for _, targetKey := range sortedKeys(step.InputMapping) {
		value, err := m.resolver.ResolveInput(ctx, step.InputMapping[targetKey], doc)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"resolve input mapping %q for step %q: %s", step.InputMapping[targetKey], step.ID, err.Error()).
				WithStep(step.ID).
				WithCause(err)
		}
		input[targetKey] = value
	}

	return input, nil
}

// ApplyOutputMapping resolves each (sourcePath, targetVariable) pair against
// the step's output object and assigns into the variable bag. A nil step
// output skips the mapping entirely.
func (m *Mapper) ApplyOutputMapping(ctx context.Context, step *schema.Step, output map[string]any, variables map[string]any) error {
	if len(step.OutputMapping) == 0 || output == nil {
		return nil
	}

	for _, sourcePath := range sortedKeys(step.OutputMapping) {
		value, err := m.resolver.ResolveOutput(ctx, sourcePath, output)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"resolve output mapping %q for step %q: %s", sourcePath, step.ID, err.Error()).
				WithStep(step.ID).
				WithCause(err)
		}
		variables[step.OutputMapping[sourcePath]] = value
	}

	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
