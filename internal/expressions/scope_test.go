package expressions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattica-ai/chaincore/pkg/schema"
)

func TestBuildConditionScope(t *testing.T) {
	scope := BuildConditionScope(
		map[string]any{"topic": "dogs"},
		[]schema.StepResult{
			{StepID: "analyze", Status: schema.StepResultSuccess, Output: map[string]any{"score": 0.9}},
			{StepID: "route", Status: schema.StepResultSkipped},
		},
		map[string]any{"seed": true},
	)

	vars, ok := scope["variables"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "dogs", vars["topic"])

	results, ok := scope["results"].(map[string]any)
	require.True(t, ok)
	analyze := results["analyze"].(map[string]any)
	assert.Equal(t, "success", analyze["status"])
	route := results["route"].(map[string]any)
	assert.Equal(t, "skipped", route["status"])

	input, ok := scope["input"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, input["seed"])
}

func TestBuildConditionScopeSnapshotsData(t *testing.T) {
	variables := map[string]any{"nested": map[string]any{"n": 1}}
	scope := BuildConditionScope(variables, nil, nil)

	// Mutating the source after building must not leak into the scope.
	variables["nested"].(map[string]any)["n"] = 99

	got := scope["variables"].(map[string]any)["nested"].(map[string]any)["n"]
	assert.Equal(t, 1, got)
}

func TestBuildConditionScopeNilInputs(t *testing.T) {
	scope := BuildConditionScope(nil, nil, nil)
	assert.NotNil(t, scope["variables"])
	assert.NotNil(t, scope["results"])
	assert.NotNil(t, scope["input"])
}

func TestNormalizeReferences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple token", `$score > 0.5`, `variables.score > 0.5`},
		{"multiple tokens", `$a == $b`, `variables.a == variables.b`},
		{"no tokens untouched", `variables.score > 0.5`, `variables.score > 0.5`},
		{"token inside double-quoted string kept", `variables.msg == "$hello"`, `variables.msg == "$hello"`},
		{"token inside single-quoted string kept", `variables.msg == '$hello'`, `variables.msg == '$hello'`},
		{"bare dollar kept", `variables.price == "5$"`, `variables.price == "5$"`},
		{"underscore identifier", `$retry_count < 3`, `variables.retry_count < 3`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeReferences(tt.in))
		})
	}
}
