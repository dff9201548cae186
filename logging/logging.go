// Package logging provides a small structured-logging facade over
// charmbracelet/log so packages depend on an interface, not a backend.
package logging

import (
	"io"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// Logger is the structured logging interface used across the module.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
	With(keyvals ...any) Logger
}

// Level controls the minimum emitted log level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) toCharm() charmlog.Level {
	switch l {
	case LevelDebug:
		return charmlog.DebugLevel
	case LevelWarn:
		return charmlog.WarnLevel
	case LevelError:
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

type charmLogger struct {
	l *charmlog.Logger
}

func (c *charmLogger) Debug(msg string, keyvals ...any) { c.l.Debug(msg, keyvals...) }
func (c *charmLogger) Info(msg string, keyvals ...any)  { c.l.Info(msg, keyvals...) }
func (c *charmLogger) Warn(msg string, keyvals ...any)  { c.l.Warn(msg, keyvals...) }
func (c *charmLogger) Error(msg string, keyvals ...any) { c.l.Error(msg, keyvals...) }

func (c *charmLogger) With(keyvals ...any) Logger {
	return &charmLogger{l: c.l.With(keyvals...)}
}

// New creates a Logger writing to w at the given level.
func New(level Level, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	l := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           level.toCharm(),
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	return &charmLogger{l: l}
}

// Discard returns a Logger that drops everything. Useful in tests.
func Discard() Logger {
	return New(LevelError, io.Discard)
}
