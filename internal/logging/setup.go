package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/rendis/timeline/pkg/schema"
)

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, schema.NewErrorf(schema.ErrCodeValidation, "unknown log level %q", s)
}

// New builds the process logger: a text or json handler writing to w,
// wrapped in a CorrelationHandler. The level is read from level on every
// record so a config reload can change it.
func New(w io.Writer, format string, level *slog.LevelVar) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown log format %q (want text or json)", format)
	}
	return slog.New(NewCorrelationHandler(h)), nil
}
