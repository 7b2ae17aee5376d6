package diagram

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// asciiCLITimeout bounds one mermaid-ascii run.
const asciiCLITimeout = 5 * time.Second

// statusTags are the compact markers folded into mermaid-ascii node ids.
var statusTags = map[string]string{
	"completed": "DONE",
	"running":   "RUN",
	"paused":    "PAUSE",
	"active":    "WAIT",
}

// RenderASCIIAuto uses binDir/mermaid-ascii when present and falls back to
// the built-in RenderASCII when it is missing, fails or prints nothing.
func RenderASCIIAuto(ctx context.Context, model *DiagramModel, binDir string) string {
	if binDir == "" {
		return RenderASCII(model)
	}
	bin := filepath.Join(binDir, "mermaid-ascii")
	if info, err := os.Stat(bin); err != nil || info.IsDir() {
		return RenderASCII(model)
	}
	out, err := RenderASCIIViaCLI(ctx, model, bin)
	if err != nil || strings.TrimSpace(out) == "" {
		return RenderASCII(model)
	}
	return out
}

// RenderASCIIViaCLI feeds RenderMermaidForCLI output to the binary at bin.
func RenderASCIIViaCLI(ctx context.Context, model *DiagramModel, bin string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, asciiCLITimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin)
	cmd.Stdin = strings.NewReader(RenderMermaidForCLI(model))
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("mermaid-ascii: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// RenderMermaidForCLI writes the edge-list dialect mermaid-ascii accepts.
// It has no ["label"] syntax, so label and status are folded into the node
// id, e.g. "*Warm-up-RUN-40%". Executable nodes without edges are listed
// alone; notes are left out.
func RenderMermaidForCLI(model *DiagramModel) string {
	ids := make(map[string]string, len(model.Nodes))
	for _, n := range model.Nodes {
		ids[n.ID] = cliNodeID(n)
	}
	name := func(id string) string {
		if d, ok := ids[id]; ok {
			return d
		}
		return mermaidSafeID(id)
	}

	linked := make(map[string]bool, len(model.Nodes))
	var b strings.Builder
	b.WriteString("graph TD\n")
	for _, e := range model.Edges {
		linked[e.From], linked[e.To] = true, true
		arrow := "-->"
		if e.Label != "" {
			arrow += "|" + e.Label + "|"
		}
		fmt.Fprintf(&b, "    %s %s %s\n", name(e.From), arrow, name(e.To))
	}
	for _, n := range model.Nodes {
		if !linked[n.ID] && n.Kind != NodeKindNote {
			fmt.Fprintf(&b, "    %s\n", ids[n.ID])
		}
	}
	return b.String()
}

func cliNodeID(n *Node) string {
	id := n.Label
	if id == "" {
		id = n.ID
	}
	if st := n.Status; st != nil {
		if tag := statusTags[st.Status]; tag != "" {
			id += "-" + tag
		}
		if st.Status == "running" || st.Status == "paused" {
			id += fmt.Sprintf("-%.0f%%", st.Progress)
		}
	}
	if n.Current {
		id = "*" + id
	}
	return strings.ReplaceAll(id, " ", "-")
}
