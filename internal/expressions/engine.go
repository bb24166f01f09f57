package expressions

import "context"

// Engine evaluates expressions against execution data.
// Two implementations: CEL (default condition dialect) and Expr (the
// "expr:" dialect). Path resolution for mappings goes through Resolver.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
