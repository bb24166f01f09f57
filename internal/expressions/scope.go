package expressions

import (
	"strings"

	"github.com/lattica-ai/chaincore/pkg/schema"
)

// BuildConditionScope assembles the data map condition expressions evaluate
// against. Keys match the CEL environment variables: variables, results,
// input. Results are keyed by step ID. All values are deep-copied so a
// snapshot handed to an engine cannot observe later mutations of the bag.
func BuildConditionScope(variables map[string]any, stepResults []schema.StepResult, input map[string]any) map[string]any {
	results := make(map[string]any, len(stepResults))
	for _, r := range stepResults {
		results[r.StepID] = map[string]any{
			"status": string(r.Status),
			"output": deepCopyMap(r.Output),
			"error":  r.Error,
		}
	}
	return map[string]any{
		"variables": orEmpty(deepCopyMap(variables)),
		"results":   results,
		"input":     orEmpty(deepCopyMap(input)),
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// NormalizeReferences rewrites legacy $name tokens to variables.name so that
// chains authored against the original substitution syntax keep working under
// compiled evaluation. Tokens inside string literals are left untouched.
func NormalizeReferences(expression string) string {
	if !strings.ContainsRune(expression, '$') {
		return expression
	}

	var b strings.Builder
	b.Grow(len(expression) + 16)

	var quote byte
	for i := 0; i < len(expression); i++ {
		c := expression[i]

		if quote != 0 {
			b.WriteByte(c)
			if c == quote && (i == 0 || expression[i-1] != '\\') {
				quote = 0
			}
			continue
		}

		switch {
		case c == '\'' || c == '"':
			quote = c
			b.WriteByte(c)
		case c == '$' && i+1 < len(expression) && isIdentStart(expression[i+1]):
			j := i + 1
			for j < len(expression) && isIdentChar(expression[j]) {
				j++
			}
			b.WriteString("variables." + expression[i+1:j])
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = deepCopyAny(v)
	}
	return cp
}

// deepCopyAny recursively deep-copies a value. Maps and slices are copied;
// primitives are value types and pass through.
func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyAny(item)
		}
		return cp
	default:
		return v
	}
}
