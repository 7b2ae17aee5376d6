package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

type fill struct{ background, text string }

// statusFills colours nodes by schema status; other statuses are grey.
var statusFills = map[string]fill{
	"completed": {"#2d6a2d", "white"},
	"running":   {"#1a5276", "white"},
	"paused":    {"#b7791a", "white"},
	"active":    {"#6c3483", "white"},
}

var kindShapes = map[NodeKind]cgraph.Shape{
	NodeKindAction:   cgraph.BoxShape,
	NodeKindDecision: cgraph.DiamondShape,
	NodeKindNote:     cgraph.NoteShape,
	NodeKindStart:    cgraph.CircleShape,
	NodeKindEnd:      cgraph.CircleShape,
}

const (
	takenColor   = "#2d6a2d"
	currentColor = "#f1c40f"
	noteColor    = "#fdf6c3"
)

// RenderImage lays the model out with dot and encodes it as PNG or SVG.
// Notes go into a dashed cluster beside the flow.
func RenderImage(ctx context.Context, model *DiagramModel, format graphviz.Format) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()
	gv.SetLayout(graphviz.DOT)

	g, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer g.Close()
	g.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		g.SetLabel(model.Title)
	}

	placed := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, n := range model.Nodes {
		gn, err := addNode(g, n)
		if err != nil {
			return nil, err
		}
		placed[n.ID] = gn
	}
	if len(model.Notes) > 0 {
		cluster, err := g.CreateSubGraphByName("cluster_notes")
		if err != nil {
			return nil, fmt.Errorf("diagram: notes cluster: %w", err)
		}
		cluster.SetLabel("Notes")
		cluster.SetStyle(cgraph.DashedGraphStyle)
		for _, n := range model.Notes {
			if _, err := addNode(cluster, n); err != nil {
				return nil, err
			}
		}
	}
	for _, e := range model.Edges {
		from, to := placed[e.From], placed[e.To]
		if from == nil || to == nil {
			continue
		}
		ge, err := g.CreateEdgeByName("", from, to)
		if err != nil {
			return nil, fmt.Errorf("diagram: edge %s -> %s: %w", e.From, e.To, err)
		}
		if e.Label != "" {
			ge.SetLabel(e.Label)
		}
		if e.Taken {
			ge.SetStyle(cgraph.BoldEdgeStyle)
			ge.SetColor(takenColor)
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, format, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func addNode(g *cgraph.Graph, n *Node) (*cgraph.Node, error) {
	gn, err := g.CreateNodeByName(n.ID)
	if err != nil {
		return nil, fmt.Errorf("diagram: node %s: %w", n.ID, err)
	}
	label := n.Label
	if n.Detail != "" {
		label += "\n" + n.Detail
	}
	gn.SetLabel(label)
	if shape, ok := kindShapes[n.Kind]; ok {
		gn.SetShape(shape)
	}

	switch {
	case n.Kind == NodeKindStart || n.Kind == NodeKindEnd:
		gn.SetWidth(0.5)
		gn.SetHeight(0.5)
	case n.Kind == NodeKindNote:
		gn.SetStyle(cgraph.FilledNodeStyle)
		gn.SetFillColor(noteColor)
	case n.Status != nil:
		f, ok := statusFills[n.Status.Status]
		if !ok {
			f = fill{"#d3d3d3", "black"}
		}
		gn.SetStyle(cgraph.FilledNodeStyle)
		gn.SetFillColor(f.background)
		gn.SetFontColor(f.text)
	}
	if n.Current {
		gn.SetPenWidth(3)
		gn.SetColor(currentColor)
	}
	return gn, nil
}
