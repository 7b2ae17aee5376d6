package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
// Traversed edges are drawn thick and the current node gets the "current"
// class on top of its status class.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	for _, node := range model.Nodes {
		fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
	}

	if len(model.Notes) > 0 {
		b.WriteString("    subgraph notes[\"Notes\"]\n")
		for _, note := range model.Notes {
			fmt.Fprintf(&b, "        %s\n", mermaidNodeDef(note))
		}
		b.WriteString("    end\n")
	}

	for _, edge := range model.Edges {
		arrow := "-->"
		if edge.Taken {
			arrow = "==>"
		}
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		fmt.Fprintf(&b, "    %s %s%s %s\n", mermaidSafeID(edge.From), arrow, label, mermaidSafeID(edge.To))
	}

	b.WriteString("\n")
	b.WriteString("    classDef completed fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef running fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef paused fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef active fill:#6c3483,stroke:#4a235a,color:#fff\n")
	b.WriteString("    classDef pending fill:#6b6b6b,stroke:#4a4a4a,color:#fff\n")
	b.WriteString("    classDef note fill:#fdf6c3,stroke:#c9b800,color:#333\n")
	b.WriteString("    classDef current stroke:#f1c40f,stroke-width:4px\n")

	for _, node := range model.Nodes {
		if node.Status != nil {
			if cls := mermaidStatusClass(node.Status.Status); cls != "" {
				fmt.Fprintf(&b, "    class %s %s\n", mermaidSafeID(node.ID), cls)
			}
		}
		if node.Current {
			fmt.Fprintf(&b, "    class %s current\n", mermaidSafeID(node.ID))
		}
	}
	for _, note := range model.Notes {
		fmt.Fprintf(&b, "    class %s note\n", mermaidSafeID(note.ID))
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the shape for its kind.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(node.Label)
	if node.Detail != "" && node.Kind != NodeKindNote {
		label += " · " + mermaidEscapeLabel(node.Detail)
	}

	switch node.Kind {
	case NodeKindDecision:
		return fmt.Sprintf("%s{\"%s\"}", id, label)
	case NodeKindNote:
		return fmt.Sprintf("%s>\"%s\"]", id, label)
	case NodeKindStart, NodeKindEnd:
		return fmt.Sprintf("%s((\"%s\"))", id, label)
	default:
		return fmt.Sprintf("%s[\"%s\"]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_", ":", "_", "/", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel replaces characters that end a quoted Mermaid label.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer(`"`, "#quot;", "|", "#124;", "\n", " ")
	return r.Replace(s)
}

// mermaidStatusClass maps an action or decision status to a class name.
func mermaidStatusClass(status string) string {
	switch status {
	case "completed", "running", "paused", "active", "pending":
		return status
	default:
		return ""
	}
}
