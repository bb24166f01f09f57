package diagram

import (
	"fmt"
	"strings"

	"github.com/lattica-ai/chaincore/pkg/schema"
)

// RenderMermaid renders the model as a Mermaid flowchart string.
func RenderMermaid(m *Model) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if m.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", m.Title))
	}

	for _, node := range m.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
	}

	for _, edge := range m.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", edge.Label)
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n",
			mermaidSafeID(edge.From), label, mermaidSafeID(edge.To)))
	}

	writeMermaidStyles(&b, m)
	return b.String()
}

func mermaidNodeDef(node Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscape(node.Label)

	switch node.ID {
	case "__start__", "__end__":
		return fmt.Sprintf("%s((%s))", id, label)
	}
	if node.Status != nil {
		label = fmt.Sprintf("%s<br/>%s %dms", label, node.Status.Status, node.Status.DurationMs)
	}
	return fmt.Sprintf("%s[\"%s\"]", id, label)
}

// writeMermaidStyles colors nodes by recorded step outcome.
func writeMermaidStyles(b *strings.Builder, m *Model) {
	for _, node := range m.Nodes {
		if node.Status == nil {
			continue
		}
		var fill string
		switch node.Status.Status {
		case schema.StepResultSuccess:
			fill = "#c8e6c9"
		case schema.StepResultError:
			fill = "#ffcdd2"
		case schema.StepResultSkipped:
			fill = "#eeeeee"
		default:
			continue
		}
		fmt.Fprintf(b, "    style %s fill:%s\n", mermaidSafeID(node.ID), fill)
	}
}

func mermaidSafeID(id string) string {
	r := strings.NewReplacer("-", "_", ".", "_", " ", "_", ":", "_")
	return "n_" + r.Replace(id)
}

func mermaidEscape(s string) string {
	r := strings.NewReplacer("\"", "&quot;", "[", "&#91;", "]", "&#93;")
	return r.Replace(s)
}
