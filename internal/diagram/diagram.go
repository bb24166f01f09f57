// Package diagram renders chains as Mermaid flowcharts or ASCII pipelines,
// optionally overlaid with the step outcomes of a finished or running
// execution.
package diagram

import (
	"fmt"

	"github.com/lattica-ai/chaincore/internal/store"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

// Node is one step box in the rendered chain.
type Node struct {
	ID      string
	Label   string
	AgentID string
	Status  *StatusOverlay
}

// StatusOverlay carries the recorded outcome of a step for rendering.
type StatusOverlay struct {
	Status     schema.StepResultStatus
	DurationMs int64
	Error      string
}

// Edge connects consecutive steps, labeled with the downstream step's
// condition when it has one.
type Edge struct {
	From  string
	To    string
	Label string
}

// Model is the intermediate representation shared by all renderers.
type Model struct {
	Title string
	Nodes []Node
	Edges []Edge
}

// Build constructs a Model from a chain and, when exec is non-nil, overlays
// each step with its recorded result.
func Build(chain *store.Chain, exec *store.Execution) (*Model, error) {
	if chain == nil {
		return nil, fmt.Errorf("diagram: chain is nil")
	}
	if len(chain.Steps) == 0 {
		return nil, fmt.Errorf("diagram: chain %q has no steps", chain.ID)
	}

	results := map[string]*schema.StepResult{}
	if exec != nil {
		for i := range exec.StepResults {
			r := &exec.StepResults[i]
			results[r.StepID] = r
		}
	}

	m := &Model{Title: chain.Name}
	m.Nodes = append(m.Nodes, Node{ID: "__start__", Label: "Start"})

	prev := "__start__"
	for _, step := range chain.Steps {
		node := Node{ID: step.ID, Label: stepLabel(step), AgentID: step.AgentID}
		if r, ok := results[step.ID]; ok {
			node.Status = &StatusOverlay{
				Status:     r.Status,
				DurationMs: r.DurationMs,
				Error:      r.Error,
			}
		}
		m.Nodes = append(m.Nodes, node)
		m.Edges = append(m.Edges, Edge{From: prev, To: step.ID, Label: conditionLabel(step.Condition)})
		prev = step.ID
	}

	m.Nodes = append(m.Nodes, Node{ID: "__end__", Label: "End"})
	m.Edges = append(m.Edges, Edge{From: prev, To: "__end__"})
	return m, nil
}

func stepLabel(step schema.Step) string {
	name := step.Name
	if name == "" {
		name = step.ID
	}
	return fmt.Sprintf("%s (%s)", name, step.AgentID)
}

func conditionLabel(c *schema.Condition) string {
	switch c.EffectiveKind() {
	case schema.ConditionAlways:
		return ""
	case schema.ConditionCustom:
		return "custom"
	default:
		return string(c.Kind)
	}
}
