// Package log defines the public logging interface used across flowgate packages.
package log

import (
	"context"
	"log/slog"
)

// Logger defines the public interface for logging operations within flowgate.
// It lets library consumers plug in their own logging implementation while
// internal components log consistently. The shape mirrors common structured
// logging patterns built on slog.
type Logger interface {
	// Debugf logs a formatted message at the DEBUG level.
	// Arguments are handled in the manner of fmt.Sprintf.
	Debugf(format string, args ...interface{})
	// Infof logs a formatted message at the INFO level.
	Infof(format string, args ...interface{})
	// Warnf logs a formatted message at the WARN level.
	Warnf(format string, args ...interface{})
	// Errorf logs a formatted message at the ERROR level. Implementations
	// should check whether the last argument is an error and log it
	// structurally when it is.
	Errorf(format string, args ...interface{})

	// Log logs a message at the specified slog.Level with key-value attributes.
	Log(level slog.Level, msg string, args ...interface{})
	// LogCtx logs a message at the specified slog.Level, including context
	// information such as trace IDs when supported by the implementation.
	LogCtx(ctx context.Context, level slog.Level, msg string, args ...interface{})

	// With returns a new Logger with the given attributes attached to every
	// subsequent entry.
	With(args ...interface{}) Logger
	// IsEnabled reports whether the logger emits entries at the given level.
	IsEnabled(level slog.Level) bool
}
