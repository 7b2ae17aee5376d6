package diagram

import (
	"context"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/rendis/timeline/pkg/schema"
)

// Format is an output format accepted by Render.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
	FormatSVG     Format = "svg"
	FormatPNG     Format = "png"
)

// ParseFormat validates a format name. Empty means mermaid.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatMermaid, nil
	case FormatMermaid, FormatASCII, FormatSVG, FormatPNG:
		return f, nil
	}
	return "", schema.NewErrorf(schema.ErrCodeValidation, "unsupported diagram format %q (want mermaid, ascii, svg or png)", s)
}

// ContentType returns the MIME type of a rendered format.
func (f Format) ContentType() string {
	switch f {
	case FormatSVG:
		return "image/svg+xml"
	case FormatPNG:
		return "image/png"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Render renders model in the requested format.
func Render(ctx context.Context, model *DiagramModel, format Format) ([]byte, error) {
	switch format {
	case FormatMermaid, "":
		return []byte(RenderMermaid(model)), nil
	case FormatASCII:
		return []byte(RenderASCII(model)), nil
	case FormatSVG:
		return RenderImage(ctx, model, graphviz.SVG)
	case FormatPNG:
		return RenderImage(ctx, model, graphviz.PNG)
	}
	return nil, schema.NewErrorf(schema.ErrCodeValidation, "unsupported diagram format %q", format)
}
