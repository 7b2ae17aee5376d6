package diagram

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/timeline/pkg/schema"
)

func TestRenderMermaid(t *testing.T) {
	out := RenderMermaid(Build("Workout", inProgress(t)))

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, "%% Workout")
	assert.Contains(t, out, `warm["Warm up · 5m 0s"]`)
	assert.Contains(t, out, `gate{"Energy? · 2 options"}`)
	assert.Contains(t, out, `n1>"Hydrate"]`)
	assert.Contains(t, out, `__start__(("Start"))`)
	assert.Contains(t, out, "subgraph notes")
	assert.Contains(t, out, "gate ==>|high| run")
	assert.Contains(t, out, "gate -->|low| walk")
	assert.Contains(t, out, "class warm completed")
	assert.Contains(t, out, "class run running")
	assert.Contains(t, out, "class run current")
	assert.Contains(t, out, "class n1 note")
}

func TestMermaidEscaping(t *testing.T) {
	assert.Equal(t, "a_b_c", mermaidSafeID("a-b.c"))
	assert.Equal(t, "say #quot;hi#quot; #124; bye", mermaidEscapeLabel(`say "hi" | bye`))
}

func TestRenderASCII(t *testing.T) {
	out := RenderASCII(Build("Workout", inProgress(t)))

	assert.Contains(t, out, "=== Workout ===")
	assert.Contains(t, out, "│ Warm up")
	assert.Contains(t, out, "[DONE]")
	assert.Contains(t, out, "[RUN] 40%")
	assert.Contains(t, out, "║ Run")
	assert.Contains(t, out, "--- options ---")
	assert.Contains(t, out, "gate ─high→ run *")
	assert.Contains(t, out, "gate ─low→ walk\n")
	assert.Contains(t, out, "Hydrate: 500ml")

	lines := strings.Split(out, "\n")
	var boxRow string
	for _, l := range lines {
		if strings.Contains(l, "Run") && strings.Contains(l, "Walk") {
			boxRow = l
		}
	}
	assert.NotEmpty(t, boxRow, "run and walk share a level")
}

func TestRenderMermaidForCLI(t *testing.T) {
	out := RenderMermaidForCLI(Build("", inProgress(t)))
	assert.Contains(t, out, "Warm-up-DONE --> Energy?")
	assert.Contains(t, out, "-->|high| *Run-RUN-40%")
	assert.NotContains(t, out, "Hydrate")
}

func TestRenderMermaidForCLI_LoneNode(t *testing.T) {
	model := &DiagramModel{Nodes: []*Node{
		{ID: "a", Label: "Read", Kind: NodeKindAction},
		{ID: "n", Label: "Memo", Kind: NodeKindNote},
	}}
	assert.Equal(t, "graph TD\n    Read\n", RenderMermaidForCLI(model))
}

func TestRenderASCIIAuto_FallsBack(t *testing.T) {
	model := Build("", linearTimeline(t))
	assert.Equal(t, RenderASCII(model), RenderASCIIAuto(context.Background(), model, t.TempDir()))
	assert.Equal(t, RenderASCII(model), RenderASCIIAuto(context.Background(), model, ""))

	binDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(binDir, "mermaid-ascii"), 0o755))
	assert.Equal(t, RenderASCII(model), RenderASCIIAuto(context.Background(), model, binDir))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatMermaid, f)

	f, err = ParseFormat("SVG")
	require.NoError(t, err)
	assert.Equal(t, FormatSVG, f)
	assert.Equal(t, "image/svg+xml", f.ContentType())
	assert.Equal(t, "image/png", FormatPNG.ContentType())
	assert.Contains(t, FormatASCII.ContentType(), "text/plain")

	_, err = ParseFormat("pdf")
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestRender_TextFormats(t *testing.T) {
	model := Build("", linearTimeline(t))
	ctx := context.Background()

	out, err := Render(ctx, model, FormatMermaid)
	require.NoError(t, err)
	assert.Equal(t, RenderMermaid(model), string(out))

	out, err = Render(ctx, model, FormatASCII)
	require.NoError(t, err)
	assert.Equal(t, RenderASCII(model), string(out))

	_, err = Render(ctx, model, Format("gif"))
	assert.Error(t, err)
}

func TestRenderImage(t *testing.T) {
	model := Build("Workout", inProgress(t))
	ctx := context.Background()

	png, err := Render(ctx, model, FormatPNG)
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])

	svg, err := Render(ctx, model, FormatSVG)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
	assert.Contains(t, string(svg), "Warm up")
}
