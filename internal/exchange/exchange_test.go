package exchange

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/timeline/internal/engine"
	"github.com/rendis/timeline/internal/graph"
	"github.com/rendis/timeline/internal/validation"
	"github.com/rendis/timeline/pkg/schema"
)

func newImporter(t *testing.T) *Importer {
	t.Helper()
	v, err := validation.NewTimelineValidator()
	require.NoError(t, err)
	return NewImporter(v, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sampleSnapshot(t *testing.T) engine.Snapshot {
	t.Helper()
	e := engine.New(engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, e.AddAction(graph.ActionSpec{ID: "A", Name: "Stretch", Duration: 60000, Connections: []string{"D"}}))
	require.NoError(t, e.AddDecisionPoint(graph.DecisionSpec{ID: "D", Name: "Energy?", Options: []graph.DecisionOption{
		{ActionID: "B", Label: "high"}, {ActionID: "C", Label: "low"},
	}}))
	require.NoError(t, e.AddAction(graph.ActionSpec{ID: "B", Name: "Run", Duration: 1800000}))
	require.NoError(t, e.AddAction(graph.ActionSpec{ID: "C", Name: "Walk", Duration: 1200000}))
	require.NoError(t, e.AddNote(graph.NoteSpec{ID: "N", Title: "Hydrate", Content: "500ml"}))
	return e.ToJSON()
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"json": FormatJSON, ".JSON": FormatJSON, "yaml": FormatYAML, "yml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("toml")
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))

	f, err := FormatFromPath("dir/morning.yml")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)
}

func TestExportImport_RoundTrip(t *testing.T) {
	im := newImporter(t)
	snap := sampleSnapshot(t)
	at := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	doc := Document{Name: "Morning", Description: "weekday", ExportedAt: &at, Timeline: snap}

	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Export(&buf, doc, format))
			if format == FormatYAML {
				assert.Contains(t, buf.String(), "decisionPoints:")
				assert.Contains(t, buf.String(), "actionId: B")
				assert.Contains(t, buf.String(), "duration: 1800000")
			}

			got, err := im.Decode(buf.Bytes(), format)
			require.NoError(t, err)
			assert.Equal(t, "Morning", got.Name)
			assert.Equal(t, "weekday", got.Description)
			require.NotNil(t, got.ExportedAt)
			assert.True(t, at.Equal(*got.ExportedAt))
			require.Len(t, got.Timeline.Actions, 3)
			assert.Equal(t, int64(1800000), got.Timeline.Actions[1].Duration)
			assert.Equal(t, []string{"D"}, got.Timeline.Actions[0].Connections)
			require.Len(t, got.Timeline.DecisionPoints, 1)
			assert.Equal(t, "low", got.Timeline.DecisionPoints[0].Options[1].Label)
			assert.Equal(t, "500ml", got.Timeline.Notes[0].Content)

			e := engine.New()
			require.NoError(t, e.Restore(got.Timeline))
			assert.Len(t, e.GetAllNodes(), 5)
		})
	}
}

func TestExport_UnknownFormat(t *testing.T) {
	err := Export(io.Discard, Document{}, Format("xml"))
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestDecode_BareSnapshot(t *testing.T) {
	im := newImporter(t)
	doc, err := im.Decode([]byte(`{"actions":[{"id":"A","name":"a","duration":5000}]}`), FormatJSON)
	require.NoError(t, err)
	assert.Empty(t, doc.Name)
	require.Len(t, doc.Timeline.Actions, 1)
	assert.Equal(t, schema.ActionStatusPending, doc.Timeline.Actions[0].Status)

	yamlDoc := "actions:\n  - id: A\n    name: a\n    duration: 5000\n"
	doc, err = im.Decode([]byte(yamlDoc), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), doc.Timeline.Actions[0].Duration)
}

func TestDecode_Rejects(t *testing.T) {
	im := newImporter(t)
	tests := map[string]string{
		"empty":         "  ",
		"not json":      "{oops",
		"zero duration": `{"timeline":{"actions":[{"id":"A","duration":0}]}}`,
		"dangling":      `{"actions":[{"id":"A","duration":10,"connections":["ghost"]}]}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := im.Decode([]byte(data), FormatJSON)
			assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
		})
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evening-walk.yaml")
	writeFile(t, path, "actions:\n  - id: W\n    name: Walk\n    duration: 900000\n")

	doc, err := newImporter(t).LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "evening-walk", doc.Name)
	assert.Equal(t, path, doc.Path)

	_, err = newImporter(t).LoadFile(filepath.Join(dir, "notes.txt"))
	assert.Error(t, err)
	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestLoadGlob(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.json"), `{"name":"A","timeline":{"actions":[{"id":"x","duration":10}]}}`)
	writeFile(t, filepath.Join(root, "nested", "deep", "b.yml"), "actions:\n  - id: y\n    duration: 20\n")
	writeFile(t, filepath.Join(root, "nested", "bad.json"), `{"actions":[{"id":"z","duration":-5}]}`)
	writeFile(t, filepath.Join(root, "nested", "README.md"), "# notes")

	docs, err := newImporter(t).LoadGlob(root, "**/*")
	require.Error(t, err)
	var te *schema.TimelineError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, []string{filepath.Join(root, "nested", "bad.json")}, te.Details["files"])

	names := map[string]bool{}
	for _, d := range docs {
		names[d.Name] = true
	}
	assert.Equal(t, map[string]bool{"A": true, "b": true}, names)

	docs, err = LoadGlob(root, "*.json")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "A", docs[0].Name)
}

func TestLoadGlob_BundledExamples(t *testing.T) {
	docs, err := newImporter(t).LoadGlob(filepath.Join("..", "..", "examples"), "**/*")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	byName := map[string]*Document{}
	for _, d := range docs {
		byName[d.Name] = d
	}
	morning := byName["Morning routine"]
	require.NotNil(t, morning)
	assert.Len(t, morning.Timeline.Actions, 4)
	require.Len(t, morning.Timeline.DecisionPoints, 1)
	assert.Len(t, morning.Timeline.DecisionPoints[0].Options, 2)
	assert.Len(t, morning.Timeline.Notes, 1)

	pomodoro := byName["Pomodoro"]
	require.NotNil(t, pomodoro)
	assert.Len(t, pomodoro.Timeline.Actions, 5)
}
