package expressions

import (
	"context"
	"strconv"
	"strings"

	"github.com/lattica-ai/chaincore/pkg/schema"
)

// Resolver resolves mapping source paths against execution data. Paths use a
// dotted/indexed syntax compiled to jq queries:
//
//	variables.user.name      lookup inside the variable bag
//	stepResults[0].output.id lookup inside a prior step result
//	topic                    bare name, resolved against the variable bag
//
// Missing intermediate keys resolve to nil, never to an error.
type Resolver struct {
	jq *GoJQEngine
}

// NewResolver creates a Resolver backed by a fresh jq engine.
func NewResolver() *Resolver {
	return &Resolver{jq: NewGoJQEngine()}
}

// InputDocument assembles the document input-mapping paths resolve against.
// Step results are keyed positionally to support stepResults[<index>] paths.
func InputDocument(variables map[string]any, stepResults []schema.StepResult) map[string]any {
	results := make([]any, len(stepResults))
	for i, r := range stepResults {
		results[i] = map[string]any{
			"stepId": r.StepID,
			"status": string(r.Status),
			"output": r.Output,
			"error":  r.Error,
		}
	}
	if variables == nil {
		variables = map[string]any{}
	}
	return map[string]any{
		"variables":   variables,
		"stepResults": results,
	}
}

// ResolveInput resolves a source path against the execution document built by
// InputDocument. Paths without a variables/stepResults prefix resolve against
// the variable bag.
func (r *Resolver) ResolveInput(ctx context.Context, path string, doc map[string]any) (any, error) {
	root, _, _ := strings.Cut(path, ".")
	root, _, _ = strings.Cut(root, "[")
	if root != "variables" && root != "stepResults" {
		path = "variables." + path
	}
	return r.resolve(ctx, path, doc)
}

// ResolveOutput resolves a source path against a step's output object only.
func (r *Resolver) ResolveOutput(ctx context.Context, path string, output map[string]any) (any, error) {
	return r.resolve(ctx, path, output)
}

func (r *Resolver) resolve(ctx context.Context, path string, doc map[string]any) (any, error) {
	query, err := pathToQuery(path)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return r.jq.Evaluate(ctx, query, doc)
}

// pathToQuery compiles a dotted/indexed path into a jq query. The whole query
// is wrapped in the error-suppression operator so that traversing into a
// missing or non-object value yields no output instead of failing.
func pathToQuery(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "empty mapping path")
	}

	var b strings.Builder
	for _, segment := range strings.Split(path, ".") {
		name, indexes, err := splitIndexes(segment)
		if err != nil {
			return "", err
		}
		if name == "" && b.Len() == 0 && len(indexes) > 0 {
			// Leading bare index, e.g. "[0].id".
			b.WriteString(".")
		} else {
			if name == "" {
				return "", schema.NewErrorf(schema.ErrCodeValidation,
					"empty segment in mapping path %q", path)
			}
			if isIdent(name) {
				b.WriteString("." + name)
			} else {
				quoted := `["` + strings.ReplaceAll(name, `"`, `\"`) + `"]`
				if b.Len() == 0 {
					b.WriteString(".")
				}
				b.WriteString(quoted)
			}
		}
		for _, idx := range indexes {
			b.WriteString("[" + strconv.Itoa(idx) + "]")
		}
	}

	return "(" + b.String() + ")?", nil
}

// splitIndexes splits "stepResults[0][1]" into ("stepResults", [0, 1]).
func splitIndexes(segment string) (string, []int, error) {
	open := strings.IndexByte(segment, '[')
	if open == -1 {
		return segment, nil, nil
	}

	name := segment[:open]
	var indexes []int
	rest := segment[open:]
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, schema.NewErrorf(schema.ErrCodeValidation,
				"malformed index in mapping segment %q", segment)
		}
		close := strings.IndexByte(rest, ']')
		if close == -1 {
			return "", nil, schema.NewErrorf(schema.ErrCodeValidation,
				"unclosed index in mapping segment %q", segment)
		}
		idx, err := strconv.Atoi(rest[1:close])
		if err != nil {
			return "", nil, schema.NewErrorf(schema.ErrCodeValidation,
				"non-numeric index in mapping segment %q", segment)
		}
		indexes = append(indexes, idx)
		rest = rest[close+1:]
	}
	return name, indexes, nil
}

func isIdent(s string) bool {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return s != ""
}
