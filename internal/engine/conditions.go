package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lattica-ai/chaincore/internal/expressions"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

// ExprDialectPrefix selects the expr-lang dialect for a custom condition.
// Without the prefix, custom expressions are evaluated as CEL.
const ExprDialectPrefix = "expr:"

// ConditionEvaluator decides whether a step should run, given the previous
// step's outcome and the execution's variable bag.
//
// Custom expressions are compiled and evaluated by a sandboxed engine, never
// substituted into a textual evaluator. Legacy $name tokens are normalized to
// variables.name before compilation. Evaluation errors and non-boolean
// results evaluate to false: a broken condition skips its step instead of
// failing the execution.
type ConditionEvaluator struct {
	cel    *expressions.CELEngine
	expr   *expressions.ExprEngine
	logger *slog.Logger
}

// NewConditionEvaluator creates a ConditionEvaluator with both dialects.
func NewConditionEvaluator(logger *slog.Logger) (*ConditionEvaluator, error) {
	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConditionEvaluator{
		cel:    celEngine,
		expr:   expressions.NewExprEngine(),
		logger: logger,
	}, nil
}

// ShouldRun reports whether a step's condition is satisfied. prev is the
// immediately preceding StepResult, nil for the first step.
//
// A skipped previous result satisfies neither if_success nor if_error.
func (ce *ConditionEvaluator) ShouldRun(ctx context.Context, step *schema.Step, prev *schema.StepResult, variables, input map[string]any, history []schema.StepResult) bool {
	switch step.Condition.EffectiveKind() {
	case schema.ConditionAlways:
		return true
	case schema.ConditionIfSuccess:
		return prev != nil && prev.Status == schema.StepResultSuccess
	case schema.ConditionIfError:
		return prev != nil && prev.Status == schema.StepResultError
	case schema.ConditionCustom:
		return ce.evaluateCustom(ctx, step, variables, input, history)
	default:
		return true
	}
}

func (ce *ConditionEvaluator) evaluateCustom(ctx context.Context, step *schema.Step, variables, input map[string]any, history []schema.StepResult) bool {
	expression := strings.TrimSpace(step.Condition.Expression)
	if expression == "" {
		ce.logger.WarnContext(ctx, "custom condition with empty expression, treating as false",
			"step_id", step.ID)
		return false
	}

	var engine expressions.Engine = ce.cel
	if rest, ok := strings.CutPrefix(expression, ExprDialectPrefix); ok {
		engine = ce.expr
		expression = strings.TrimSpace(rest)
	}

	expression = expressions.NormalizeReferences(expression)
	scope := expressions.BuildConditionScope(variables, history, input)

	result, err := engine.Evaluate(ctx, expression, scope)
	if err != nil {
		ce.logger.WarnContext(ctx, "condition evaluation failed, treating as false",
			"step_id", step.ID,
			"engine", engine.Name(),
			"error", err)
		return false
	}

	b, ok := result.(bool)
	if !ok {
		ce.logger.WarnContext(ctx, "condition evaluated to non-boolean, treating as false",
			"step_id", step.ID,
			"engine", engine.Name(),
			"result_type", typeName(result))
		return false
	}
	return b
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	switch v.(type) {
	case bool:
		return "bool"
	case string:
		return "string"
	case float64, int, int64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return "unknown"
	}
}
