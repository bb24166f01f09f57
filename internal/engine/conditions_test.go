package engine

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattica-ai/chaincore/pkg/schema"
)

func newEvaluator(t *testing.T) *ConditionEvaluator {
	t.Helper()
	ce, err := NewConditionEvaluator(slog.Default())
	require.NoError(t, err)
	return ce
}

func condition(kind schema.ConditionKind, expr string) *schema.Condition {
	return &schema.Condition{Kind: kind, Expression: expr}
}

func TestShouldRunBuiltinKinds(t *testing.T) {
	ce := newEvaluator(t)
	ctx := context.Background()

	success := &schema.StepResult{StepID: "p", Status: schema.StepResultSuccess}
	failure := &schema.StepResult{StepID: "p", Status: schema.StepResultError}
	skipped := &schema.StepResult{StepID: "p", Status: schema.StepResultSkipped}

	tests := []struct {
		name string
		cond *schema.Condition
		prev *schema.StepResult
		want bool
	}{
		{"nil condition always runs", nil, nil, true},
		{"always runs after failure", condition(schema.ConditionAlways, ""), failure, true},
		{"if_success after success", condition(schema.ConditionIfSuccess, ""), success, true},
		{"if_success after failure", condition(schema.ConditionIfSuccess, ""), failure, false},
		{"if_success on first step never runs", condition(schema.ConditionIfSuccess, ""), nil, false},
		{"if_error after failure", condition(schema.ConditionIfError, ""), failure, true},
		{"if_error after success", condition(schema.ConditionIfError, ""), success, false},
		{"if_error on first step never runs", condition(schema.ConditionIfError, ""), nil, false},
		// A skipped result satisfies neither branch kind.
		{"if_success after skipped", condition(schema.ConditionIfSuccess, ""), skipped, false},
		{"if_error after skipped", condition(schema.ConditionIfError, ""), skipped, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := &schema.Step{ID: "s", AgentID: "a", Condition: tt.cond}
			got := ce.ShouldRun(ctx, step, tt.prev, nil, nil, nil)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShouldRunCustomCEL(t *testing.T) {
	ce := newEvaluator(t)
	ctx := context.Background()

	step := &schema.Step{ID: "s", Condition: condition(schema.ConditionCustom, `variables.score > 0.5`)}

	assert.True(t, ce.ShouldRun(ctx, step, nil, map[string]any{"score": 0.9}, nil, nil))
	assert.False(t, ce.ShouldRun(ctx, step, nil, map[string]any{"score": 0.1}, nil, nil))
}

func TestShouldRunCustomLegacyTokens(t *testing.T) {
	ce := newEvaluator(t)
	ctx := context.Background()

	// $score is normalized to variables.score before compilation.
	step := &schema.Step{ID: "s", Condition: condition(schema.ConditionCustom, `$score >= 10.0`)}

	assert.True(t, ce.ShouldRun(ctx, step, nil, map[string]any{"score": 12.5}, nil, nil))
	assert.False(t, ce.ShouldRun(ctx, step, nil, map[string]any{"score": 3.0}, nil, nil))
}

func TestShouldRunCustomExprDialect(t *testing.T) {
	ce := newEvaluator(t)
	ctx := context.Background()

	step := &schema.Step{ID: "s", Condition: condition(schema.ConditionCustom,
		`expr: (variables.category ?? "none") == "urgent"`)}

	assert.True(t, ce.ShouldRun(ctx, step, nil, map[string]any{"category": "urgent"}, nil, nil))
	assert.False(t, ce.ShouldRun(ctx, step, nil, map[string]any{}, nil, nil))
}

func TestShouldRunCustomAgainstResults(t *testing.T) {
	ce := newEvaluator(t)
	ctx := context.Background()

	step := &schema.Step{ID: "s", Condition: condition(schema.ConditionCustom,
		`results["analyze"].status == "error"`)}
	history := []schema.StepResult{
		{StepID: "analyze", Status: schema.StepResultError, Error: "boom"},
	}

	assert.True(t, ce.ShouldRun(ctx, step, &history[0], nil, nil, history))
}

func TestShouldRunCustomSwallowsToFalse(t *testing.T) {
	ce := newEvaluator(t)
	ctx := context.Background()

	tests := []struct {
		name string
		expr string
	}{
		{"empty expression", "   "},
		{"compile error", `variables.x ==`},
		{"non-boolean result", `variables.topic`},
		{"undeclared namespace", `env.PATH != ""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := &schema.Step{ID: "s", Condition: condition(schema.ConditionCustom, tt.expr)}
			assert.False(t, ce.ShouldRun(ctx, step, nil, map[string]any{"topic": "dogs"}, nil, nil))
		})
	}
}

func TestShouldRunCustomIsIdempotent(t *testing.T) {
	ce := newEvaluator(t)
	ctx := context.Background()

	step := &schema.Step{ID: "s", Condition: condition(schema.ConditionCustom, `variables.n < 5`)}
	vars := map[string]any{"n": 3}

	first := ce.ShouldRun(ctx, step, nil, vars, nil, nil)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ce.ShouldRun(ctx, step, nil, vars, nil, nil))
	}
}
