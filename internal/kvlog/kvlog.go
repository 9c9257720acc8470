// Package kvlog gives the index and the coordinator a small injectable
// logging seam (the log store takes no logger). The teacher warns on eviction failures
// with a bare fmt.Printf; this generalizes that one call site into a
// structured logger backed by log/slog, without pulling in a third-party
// logging library (none appears anywhere in the retrieval pack's go.mod
// files).
package kvlog

import (
	"io"
	"log/slog"
)

// Logger is the minimal surface the store needs from a logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type slogLogger struct {
	l *slog.Logger
}

// New wraps w in a text-handler slog.Logger.
func New(w io.Writer) Logger {
	return &slogLogger{l: slog.New(slog.NewTextHandler(w, nil))}
}

// Default returns the package-wide default logger (writes to stderr via
// slog's default handler).
func Default() Logger {
	return &slogLogger{l: slog.Default()}
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

type nopLogger struct{}

// NewNop returns a Logger that discards everything, for tests.
func NewNop() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
