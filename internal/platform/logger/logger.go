package logger

import (
	"io"
	"log/slog"
	"strings"
)

// Redacted replaces the value of attributes that may carry secrets or proof
// material.
const Redacted = "[redacted]"

var redactedKeys = map[string]bool{
	"proof":          true,
	"signature":      true,
	"private_key":    true,
	"session_token":  true,
	"cookie":         true,
	"siwe_message":   true,
	"public_signals": true,
}

// New returns a JSON logger writing to w at level (debug, info, warn, error;
// anything else is info). Every line carries the service and environment.
func New(w io.Writer, level, env string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: redact,
	})
	return slog.New(handler).With("service", "deepname", "env", env)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if redactedKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, Redacted)
	}
	return a
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
