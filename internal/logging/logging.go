package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a console slog.Logger with the provided level string.
func New(level string) *slog.Logger {
	return slog.New(handler(os.Stdout, level))
}

// NewWithFile duplicates log output to stdout and the named file. A file that
// cannot be opened degrades to console-only logging rather than failing the
// run.
func NewWithFile(level, filename string) *slog.Logger {
	if filename == "" {
		return New(level)
	}

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := New(level)
		logger.Warn("cannot open log file, logging to console only", "file", filename, "error", err)
		return logger
	}

	return slog.New(handler(io.MultiWriter(os.Stdout, f), level))
}

func handler(w io.Writer, level string) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: levelFromString(level),
	})
}

func levelFromString(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
