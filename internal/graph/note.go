package graph

import (
	"strings"

	"github.com/rendis/timeline/pkg/schema"
)

// NoteSpec carries the construction-time inputs of a note.
type NoteSpec struct {
	ID      string
	Title   string
	Content string
	X, Y    float64
}

// Note is a non-executable annotation. The engine never traverses it.
type Note struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// NewNote validates the spec and returns a note.
func NewNote(spec NoteSpec) (*Note, error) {
	if strings.TrimSpace(spec.ID) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "note id is required")
	}
	return &Note{ID: spec.ID, Title: spec.Title, Content: spec.Content, X: spec.X, Y: spec.Y}, nil
}

// Position returns the canvas position.
func (n *Note) Position() Position { return Position{X: n.X, Y: n.Y} }

// Clone returns a copy.
func (n *Note) Clone() *Note {
	c := *n
	return &c
}

// Map returns the note as plain data keyed by JSON field names.
func (n *Note) Map() map[string]any {
	return toMap(n)
}
