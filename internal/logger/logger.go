package logger

import (
	"io"
	"log/slog"
	"os"
)

// New creates a new slog.Logger instance that writes to os.Stdout.
// If debug is true, the log level is set to Debug. Otherwise, it's set to Info.
func New(debug bool) *slog.Logger {
	return NewWithWriter(os.Stdout, debug)
}

// NewWithWriter creates a new slog.Logger instance with a specific writer.
func NewWithWriter(w io.Writer, debug bool) *slog.Logger {
	var level slog.Level
	if debug {
		level = slog.LevelDebug
	} else {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Discard returns a logger that drops everything. Used by tests and the CLI's quiet mode.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// KeySuffix returns the last 4 characters of a key, or the full key if it's shorter.
// Bearer tokens are only ever logged through this helper.
func KeySuffix(key string) string {
	if len(key) > 4 {
		return key[len(key)-4:]
	}
	return key
}

// KeyPrefix returns a short recognisable prefix of a key for chat notifications.
func KeyPrefix(key string, n int) string {
	if len(key) > n {
		return key[:n] + "..."
	}
	return key
}
