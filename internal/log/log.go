// Package log provides structured logging for the companion.
// It wraps slog with sensible defaults for production use.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger *slog.Logger
	mu     sync.Mutex
)

// Options selects the level, format and destination.
type Options struct {
	// Level is "debug", "info", "warn" or "error". Default: info.
	Level string

	// Format is "json" or "text". Empty means json when GO_ENV is
	// "production" and text otherwise.
	Format string

	// Output defaults to stdout.
	Output io.Writer
}

// ParseLevel converts a level name to an slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds the global logger and installs it as the slog default.
func Setup(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	format := opts.Format
	if format == "" && os.Getenv("GO_ENV") == "production" {
		format = "json"
	}

	var l *slog.Logger
	if format == "json" {
		l = slog.New(slog.NewJSONHandler(out, hopts))
	} else {
		l = slog.New(slog.NewTextHandler(out, hopts))
	}

	mu.Lock()
	logger = l
	mu.Unlock()
	slog.SetDefault(l)
	return l
}

// Init initializes the global logger at level with the default format.
func Init(level string) {
	Setup(Options{Level: level})
}

// L returns the global logger instance.
func L() *slog.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil {
		return Setup(Options{})
	}
	return l
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
