// gen-diagrams generates sample diagram outputs for README documentation.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-graphviz"

	"github.com/rendis/timeline/internal/diagram"
	"github.com/rendis/timeline/internal/engine"
	"github.com/rendis/timeline/internal/graph"
)

// frozenClock keeps the sample run at a fixed instant.
type frozenClock struct{ now time.Time }

func (c *frozenClock) Now() time.Time { return c.now }

func main() {
	ctx := context.Background()
	snap, err := sampleRun()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build error: %v\n", err)
		os.Exit(1)
	}
	model := diagram.Build("Morning routine", snap)

	outDir := filepath.Join("docs", "assets")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir error: %v\n", err)
		os.Exit(1)
	}

	// ASCII (mermaid-ascii with built-in fallback)
	home, _ := os.UserHomeDir()
	ascii := diagram.RenderASCIIAuto(ctx, model, filepath.Join(home, ".timeline", "bin"))
	write(filepath.Join(outDir, "diagram-ascii.txt"), []byte(ascii))
	fmt.Println("=== ASCII ===")
	fmt.Println(ascii)

	mermaid := diagram.RenderMermaid(model)
	write(filepath.Join(outDir, "diagram-mermaid.md"), []byte("```mermaid\n"+mermaid+"\n```\n"))
	fmt.Println("=== Mermaid ===")
	fmt.Println(mermaid)

	png, err := diagram.RenderImage(ctx, model, graphviz.PNG)
	if err != nil {
		fmt.Fprintf(os.Stderr, "image error: %v\n", err)
		return
	}
	pngPath := filepath.Join(outDir, "diagram-sample.png")
	write(pngPath, png)
	fmt.Printf("=== Image (PNG) ===\nWritten: %s (%d bytes)\n", pngPath, len(png))
}

// sampleRun builds a branching timeline and plays it up to the middle of the
// chosen branch so every node status shows up in the output.
func sampleRun() (engine.Snapshot, error) {
	clk := &frozenClock{now: time.Date(2026, 1, 5, 6, 30, 0, 0, time.UTC)}
	e := engine.New(
		engine.WithClock(clk),
		engine.WithTickInterval(time.Hour),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	defer e.Stop()

	steps := []func() error{
		func() error {
			return e.AddAction(graph.ActionSpec{ID: "stretch", Name: "Stretch", Duration: 5 * 60_000, Connections: []string{"weather"}})
		},
		func() error {
			return e.AddDecisionPoint(graph.DecisionSpec{ID: "weather", Name: "Weather?", Options: []graph.DecisionOption{
				{ActionID: "run", Label: "sunny"},
				{ActionID: "treadmill", Label: "rainy"},
			}})
		},
		func() error {
			return e.AddAction(graph.ActionSpec{ID: "run", Name: "Run outside", Duration: 30 * 60_000, Connections: []string{"shower"}})
		},
		func() error {
			return e.AddAction(graph.ActionSpec{ID: "treadmill", Name: "Treadmill", Duration: 20 * 60_000, Connections: []string{"shower"}})
		},
		func() error { return e.AddAction(graph.ActionSpec{ID: "shower", Name: "Shower", Duration: 10 * 60_000}) },
		func() error { return e.AddNote(graph.NoteSpec{ID: "hydrate", Title: "Hydrate", Content: "500ml before leaving"}) },
		func() error { return e.StartManualMode("stretch") },
		func() error { e.NextStep(); return nil },
		func() error { return e.MakeDecision("weather", "run") },
		func() error { e.NextStep(); return nil },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return engine.Snapshot{}, err
		}
	}
	clk.now = clk.now.Add(12 * time.Minute)
	e.Pause()
	return e.ToJSON(), nil
}

func write(path string, data []byte) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
	}
}
