package exchange

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/rendis/timeline/internal/engine"
	"github.com/rendis/timeline/internal/validation"
	"github.com/rendis/timeline/pkg/schema"
)

// Importer reads and validates timeline files.
type Importer struct {
	validator *validation.TimelineValidator
	logger    *slog.Logger
}

// NewImporter creates an importer. A nil logger logs to stderr.
func NewImporter(v *validation.TimelineValidator, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Importer{validator: v, logger: logger}
}

// Decode parses data in the given format, validates the snapshot and
// returns the document. Warnings are logged, errors returned.
func (im *Importer) Decode(data []byte, format Format) (*Document, error) {
	jsonData, err := toJSON(data, format)
	if err != nil {
		return nil, err
	}
	env, snapData, err := split(jsonData)
	if err != nil {
		return nil, err
	}

	result := im.validator.ValidateDocument(snapData)
	for _, w := range result.Warnings {
		im.logger.Warn("timeline import warning", "path", w.Path, "message", w.Message)
	}
	if err := result.ToError(); err != nil {
		return nil, err
	}

	snap, err := engine.ParseSnapshot(snapData)
	if err != nil {
		return nil, err
	}
	return &Document{
		Name:        env.Name,
		Description: env.Description,
		ExportedAt:  env.ExportedAt,
		Timeline:    snap,
	}, nil
}

// LoadFile reads one timeline file. The format follows the extension and a
// missing name defaults to the file's base name.
func (im *Importer) LoadFile(path string) (*Document, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("exchange: read %s: %w", path, err)
	}
	doc, err := im.Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("exchange: %s: %w", path, err)
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	doc.Path = path
	return doc, nil
}

// LoadGlob loads every file under root matching pattern ("**" supported).
// Files with other extensions are skipped. It returns the documents that
// loaded and a joined error for the ones that did not.
func (im *Importer) LoadGlob(root, pattern string) ([]*Document, error) {
	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("exchange: glob %q: %w", pattern, err)
	}
	var docs []*Document
	var failed []string
	var errs []error
	for _, rel := range matches {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if _, err := FormatFromPath(path); err != nil {
			im.logger.Debug("skipping non-timeline file", "path", path)
			continue
		}
		doc, err := im.LoadFile(path)
		if err != nil {
			failed = append(failed, path)
			errs = append(errs, err)
			continue
		}
		docs = append(docs, doc)
	}
	if len(errs) > 0 {
		return docs, schema.NewErrorf(schema.ErrCodeValidation, "%d of %d timeline files failed to load", len(errs), len(errs)+len(docs)).
			WithDetails(map[string]any{"files": failed}).
			WithCause(errors.Join(errs...))
	}
	return docs, nil
}

var defaultImporter = sync.OnceValues(func() (*Importer, error) {
	v, err := validation.NewTimelineValidator()
	if err != nil {
		return nil, err
	}
	return NewImporter(v, nil), nil
})

// LoadFile reads one timeline file with the default importer.
func LoadFile(path string) (*Document, error) {
	im, err := defaultImporter()
	if err != nil {
		return nil, err
	}
	return im.LoadFile(path)
}

// LoadGlob loads matching timeline files with the default importer.
func LoadGlob(root, pattern string) ([]*Document, error) {
	im, err := defaultImporter()
	if err != nil {
		return nil, err
	}
	return im.LoadGlob(root, pattern)
}
