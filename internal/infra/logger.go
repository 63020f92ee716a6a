package infra

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the default slog logger from config.
func NewLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// Recover logs a panic with its stack context and re-raises it.
// Used as a last-resort guard in command entrypoints.
func Recover() {
	if r := recover(); r != nil {
		slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
		panic(r)
	}
}
