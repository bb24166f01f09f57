package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the project-standard slog logger, wrapped with the
// correlation handler so *Context log calls pick up execution/step/agent IDs.
//   - format=json: JSON handler (the default for servers)
//   - format=text: text handler with source locations (local development)
//
// level accepts debug/info/warn/error, default info.
func NewLogger(w io.Writer, format, level string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var inner slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		opts.AddSource = true
		inner = slog.NewTextHandler(w, opts)
	} else {
		inner = slog.NewJSONHandler(w, opts)
	}

	return slog.New(NewCorrelationHandler(inner))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
