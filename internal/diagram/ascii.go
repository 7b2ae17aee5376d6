package diagram

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// frame is a set of box-drawing runes.
type frame struct{ h, v, tl, tr, bl, br string }

var (
	thinFrame   = frame{"─", "│", "┌", "┐", "└", "┘"}
	doubleFrame = frame{"═", "║", "╔", "╗", "╚", "╝"}
)

const levelArrow = "       │\n       ▼\n"

// RenderASCII draws one row of boxes per level, the current node framed
// double. Decision options and notes follow as lists since a row layout
// cannot draw them.
func RenderASCII(model *DiagramModel) string {
	byID := make(map[string]*Node, len(model.Nodes))
	for _, n := range model.Nodes {
		byID[n.ID] = n
	}

	var b strings.Builder
	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}
	for i, level := range model.Levels {
		var row [][]string
		for _, id := range level {
			if n := byID[id]; n != nil {
				row = append(row, drawBox(n))
			}
		}
		if len(row) == 0 {
			continue
		}
		writeRow(&b, row)
		if i < len(model.Levels)-1 {
			b.WriteString(levelArrow)
		}
	}

	header := false
	for _, e := range model.Edges {
		if e.Label == "" {
			continue
		}
		if !header {
			b.WriteString("\n--- options ---\n")
			header = true
		}
		fmt.Fprintf(&b, "  %s ─%s→ %s", e.From, e.Label, e.To)
		if e.Taken {
			b.WriteString(" *")
		}
		b.WriteByte('\n')
	}

	if len(model.Notes) > 0 {
		b.WriteString("\n--- notes ---\n")
		for _, n := range model.Notes {
			b.WriteString("  " + n.Label)
			if n.Detail != "" {
				b.WriteString(": " + n.Detail)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// asciiStatus is the bracketed tag under a box, with progress while the
// action runs or is paused.
func asciiStatus(st *StatusOverlay) string {
	if st == nil {
		return ""
	}
	tag, ok := statusTags[st.Status]
	switch {
	case st.Status == "pending":
		tag = "PEND"
	case !ok:
		return ""
	}
	out := "[" + tag + "]"
	if st.Status == "running" || st.Status == "paused" {
		out += fmt.Sprintf(" %.0f%%", st.Progress)
	}
	return out
}

// drawBox returns the lines of a node's box, all the same width.
func drawBox(n *Node) []string {
	content := []string{n.Label}
	if n.Detail != "" {
		content = append(content, n.Detail)
	}
	if tag := asciiStatus(n.Status); tag != "" {
		content = append(content, tag)
	}
	inner := 0
	for _, c := range content {
		inner = max(inner, utf8.RuneCountInString(c))
	}

	f := thinFrame
	if n.Current {
		f = doubleFrame
	}
	edge := strings.Repeat(f.h, inner+2)
	lines := make([]string, 0, len(content)+2)
	lines = append(lines, f.tl+edge+f.tr)
	for _, c := range content {
		lines = append(lines, f.v+" "+c+strings.Repeat(" ", inner-utf8.RuneCountInString(c))+" "+f.v)
	}
	return append(lines, f.bl+edge+f.br)
}

// writeRow prints boxes side by side, padding shorter boxes with blanks.
func writeRow(b *strings.Builder, boxes [][]string) {
	height := 0
	for _, box := range boxes {
		height = max(height, len(box))
	}
	for r := range height {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if r < len(box) {
				b.WriteString(box[r])
			} else {
				b.WriteString(strings.Repeat(" ", utf8.RuneCountInString(box[0])))
			}
		}
		b.WriteByte('\n')
	}
}
