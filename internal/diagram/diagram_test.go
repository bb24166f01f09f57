package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattica-ai/chaincore/internal/store"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

func reviewChain() *store.Chain {
	return &store.Chain{
		ID:   "review",
		Name: "Code Review",
		Steps: []schema.Step{
			{ID: "analyze", AgentID: "analyzer"},
			{ID: "summarize", AgentID: "writer",
				Condition: &schema.Condition{Kind: schema.ConditionIfSuccess}},
			{ID: "escalate", AgentID: "notifier",
				Condition: &schema.Condition{Kind: schema.ConditionCustom, Expression: "variables.severity > 3"}},
		},
	}
}

func TestBuildLinearChain(t *testing.T) {
	m, err := Build(reviewChain(), nil)
	require.NoError(t, err)

	assert.Equal(t, "Code Review", m.Title)
	require.Len(t, m.Nodes, 5) // start + 3 steps + end
	assert.Equal(t, "__start__", m.Nodes[0].ID)
	assert.Equal(t, "__end__", m.Nodes[4].ID)

	require.Len(t, m.Edges, 4)
	assert.Equal(t, "", m.Edges[0].Label, "unconditioned step has no edge label")
	assert.Equal(t, "if_success", m.Edges[1].Label)
	assert.Equal(t, "custom", m.Edges[2].Label)
}

func TestBuildRejectsEmptyChain(t *testing.T) {
	_, err := Build(&store.Chain{ID: "empty", Name: "empty"}, nil)
	assert.Error(t, err)

	_, err = Build(nil, nil)
	assert.Error(t, err)
}

func TestBuildOverlaysExecution(t *testing.T) {
	exec := &store.Execution{
		StepResults: []schema.StepResult{
			{StepID: "analyze", Status: schema.StepResultSuccess, DurationMs: 120},
			{StepID: "summarize", Status: schema.StepResultError, Error: "agent timed out"},
			{StepID: "escalate", Status: schema.StepResultSkipped},
		},
	}

	m, err := Build(reviewChain(), exec)
	require.NoError(t, err)

	require.NotNil(t, m.Nodes[1].Status)
	assert.Equal(t, schema.StepResultSuccess, m.Nodes[1].Status.Status)
	assert.EqualValues(t, 120, m.Nodes[1].Status.DurationMs)
	assert.Equal(t, "agent timed out", m.Nodes[2].Status.Error)
	assert.Equal(t, schema.StepResultSkipped, m.Nodes[3].Status.Status)
}

func TestRenderMermaid(t *testing.T) {
	exec := &store.Execution{
		StepResults: []schema.StepResult{
			{StepID: "analyze", Status: schema.StepResultSuccess, DurationMs: 80},
		},
	}
	m, err := Build(reviewChain(), exec)
	require.NoError(t, err)

	out := RenderMermaid(m)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "%% Code Review")
	assert.Contains(t, out, "n___start__((Start))")
	assert.Contains(t, out, "-->|if_success| n_summarize")
	assert.Contains(t, out, "style n_analyze fill:#c8e6c9")
	assert.Contains(t, out, "success 80ms")
}

func TestRenderASCII(t *testing.T) {
	exec := &store.Execution{
		StepResults: []schema.StepResult{
			{StepID: "analyze", Status: schema.StepResultSuccess},
			{StepID: "summarize", Status: schema.StepResultError, Error: "boom"},
		},
	}
	m, err := Build(reviewChain(), exec)
	require.NoError(t, err)

	out := RenderASCII(m)
	assert.Contains(t, out, "=== Code Review ===")
	assert.Contains(t, out, "[OK] analyze (analyzer)")
	assert.Contains(t, out, "[FAIL] summarize (writer): boom")
	assert.Contains(t, out, "| (if_success)")
}
