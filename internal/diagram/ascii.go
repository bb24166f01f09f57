package diagram

import (
	"fmt"
	"strings"

	"github.com/lattica-ai/chaincore/pkg/schema"
)

// statusTag returns a short ASCII indicator for a recorded step outcome.
func statusTag(status schema.StepResultStatus) string {
	switch status {
	case schema.StepResultSuccess:
		return "[OK]"
	case schema.StepResultError:
		return "[FAIL]"
	case schema.StepResultSkipped:
		return "[SKIP]"
	default:
		return ""
	}
}

// RenderASCII renders the model as a vertical text pipeline.
func RenderASCII(m *Model) string {
	var b strings.Builder

	if m.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", m.Title)
	}

	labels := map[string]Edge{}
	for _, edge := range m.Edges {
		labels[edge.To] = edge
	}

	for i, node := range m.Nodes {
		if i > 0 {
			b.WriteString("   |\n")
			if edge, ok := labels[node.ID]; ok && edge.Label != "" {
				fmt.Fprintf(&b, "   | (%s)\n", edge.Label)
			}
			b.WriteString("   v\n")
		}

		line := node.Label
		if node.Status != nil {
			line = fmt.Sprintf("%s %s", statusTag(node.Status.Status), line)
			if node.Status.Error != "" {
				line += ": " + node.Status.Error
			}
		}
		fmt.Fprintf(&b, "[ %s ]\n", line)
	}

	return b.String()
}
