package expressions

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/lattica-ai/chaincore/pkg/schema"
)

// ExprEngine evaluates "expr:" conditions with expr-lang/expr: array
// operations (filter, map, count, any, all), nil coalescing (??), optional
// chaining (?.) and pipe chaining (|) over the execution variables.
//
// Chains re-evaluate the same handful of conditions on every run, so
// compiled programs are kept in a sync.Map keyed by source text. Programs
// are immutable once compiled and safe to run from multiple goroutines.
type ExprEngine struct {
	programs sync.Map // expression source -> *vm.Program
}

// NewExprEngine creates an engine with an empty program cache.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string {
	return "expr"
}

// Evaluate runs the expression against data, with every key of the map
// exposed as a top-level variable. Unknown variables resolve to nil rather
// than failing compilation, since step outputs appear incrementally.
func (e *ExprEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}

	env := data
	if env == nil {
		env = map[string]any{}
	}

	prg, err := e.program(expression, env)
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"expr evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return out, nil
}

// program returns the cached compiled form of expression, compiling it on
// first use. Concurrent first evaluations may compile twice; one result wins
// the cache and the duplicate is discarded.
func (e *ExprEngine) program(expression string, env map[string]any) (*vm.Program, error) {
	if cached, ok := e.programs.Load(expression); ok {
		return cached.(*vm.Program), nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"expr compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	actual, _ := e.programs.LoadOrStore(expression, prg)
	return actual.(*vm.Program), nil
}

var _ Engine = (*ExprEngine)(nil)
