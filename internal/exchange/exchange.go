// Package exchange writes timelines to files and reads them back. Files are
// JSON or YAML; either a bare snapshot or a document envelope carrying the
// timeline name. Everything read is validated before it is returned.
package exchange

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rendis/timeline/internal/engine"
	"github.com/rendis/timeline/pkg/schema"
)

// Format is a file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" or "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", schema.NewErrorf(schema.ErrCodeValidation, "unsupported format %q (want json or yaml)", s)
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Document is a timeline as exchanged in files.
type Document struct {
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	ExportedAt  *time.Time      `json:"exportedAt,omitempty"`
	Timeline    engine.Snapshot `json:"timeline"`

	// Path is the file the document was read from.
	Path string `json:"-"`
}

// envelope is the on-disk document with the snapshot kept raw so it can be
// validated before decoding.
type envelope struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ExportedAt  *time.Time      `json:"exportedAt"`
	Timeline    json.RawMessage `json:"timeline"`
}

// Export writes doc to w. YAML output keeps the JSON field names.
func Export(w io.Writer, doc Document, format Format) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("exchange: encode document: %w", err)
	}
	switch format {
	case FormatJSON:
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return fmt.Errorf("exchange: indent document: %w", err)
		}
		buf.WriteByte('\n')
		_, err = w.Write(buf.Bytes())
		return err
	case FormatYAML:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var generic any
		if err := dec.Decode(&generic); err != nil {
			return fmt.Errorf("exchange: encode document: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(plainNumbers(generic)); err != nil {
			return fmt.Errorf("exchange: encode yaml: %w", err)
		}
		return enc.Close()
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "unsupported format %q", format)
}

// plainNumbers turns json.Number values into int64 or float64 so durations
// are written as 1800000 and not 1.8e+06.
func plainNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = plainNumbers(val)
		}
	case []any:
		for i, val := range t {
			t[i] = plainNumbers(val)
		}
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	}
	return v
}

// toJSON normalizes file content to JSON.
func toJSON(data []byte, format Format) ([]byte, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "timeline file is empty")
	}
	if format == FormatJSON {
		return data, nil
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode yaml: %v", err).WithCause(err)
	}
	out, err := json.Marshal(normalizeYAML(generic))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "convert yaml: %v", err).WithCause(err)
	}
	return out, nil
}

// normalizeYAML converts map[any]any values, which JSON cannot encode.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	}
	return v
}

// split separates the envelope from the snapshot. A document without a
// "timeline" key is a bare snapshot.
func split(data []byte) (envelope, []byte, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return envelope{}, nil, schema.NewErrorf(schema.ErrCodeValidation, "decode timeline document: %v", err).WithCause(err)
	}
	if _, ok := probe["timeline"]; !ok {
		return envelope{}, data, nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, nil, schema.NewErrorf(schema.ErrCodeValidation, "decode timeline document: %v", err).WithCause(err)
	}
	return env, env.Timeline, nil
}
