// Package xlog wraps log/slog in the small, handler-swappable Logger shape
// used throughout this repository for diagnostic and status output.
package xlog

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps a *slog.Logger so call sites don't need to depend on slog
// directly, and so tests can install a no-op logger cheaply.
type Logger struct {
	*slog.Logger
}

// New wraps an arbitrary slog.Handler.
func New(h slog.Handler) *Logger {
	return &Logger{Logger: slog.New(h)}
}

// NewTextLogger returns a Logger writing human-readable text to os.Stderr
// at the given level.
func NewTextLogger(level slog.Level) *Logger {
	return New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewJSONLogger returns a Logger writing JSON-encoded records to os.Stderr
// at the given level.
func NewJSONLogger(level slog.Level) *Logger {
	return New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger discards everything -- useful in tests that don't want log
// noise but still need a non-nil Logger.
func NoopLogger() *Logger {
	return New(slog.NewTextHandler(io.Discard, nil))
}
