// Package logger sets up the process wide slog logger from the environment.
package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	defaultLogger atomic.Pointer[slog.Logger]
	initOnce      sync.Once
)

// Setup builds the default logger.
// LOG_LEVEL selects debug, info, warn or error. LOG_FORMAT=json switches to JSON output.
// Output always goes to stderr.
func Setup() *slog.Logger {
	l := slog.New(Handler(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")))
	defaultLogger.Store(l)
	return l
}

// Handler returns the handler Setup would build for the given level and format.
func Handler(level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: Level(level)}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}

// Level parses a LOG_LEVEL value, anything unknown is info.
func Level(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// L returns the default logger, calling Setup on first use.
// It is safe for concurrent use.
func L() *slog.Logger {
	initOnce.Do(func() {
		if defaultLogger.Load() == nil {
			Setup()
		}
	})
	return defaultLogger.Load()
}
