package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a configured slog.Logger.
//
// level: slog level (DEBUG, INFO, WARN, ERROR)
// format: "text" (human-readable) or "json" (structured)
//
// Output goes to stderr: stdout carries the advisory progress lines of
// the submitter and must stay clean of log records.
func New(level slog.Level, format string) *slog.Logger {
	return NewWithWriter(level, format, os.Stderr)
}

// NewWithWriter creates a logger writing to the given writer.
func NewWithWriter(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// Discard returns a logger that drops everything. Components require a
// non-nil logger; tests and library callers that want silence use this.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
