package observability

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type ctxKey string

const (
	ctxKeySessionID ctxKey = "session_id"
	ctxKeyUserID    ctxKey = "user_id"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// Init replaces the process logger with one at the given level.
// Accepted levels: debug, info, warn, error. Anything else keeps info.
func Init(level string) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func Logger() *slog.Logger {
	return logger
}

// WithSession stores session and user identifiers in the context so nested
// components log with the same correlation fields.
func WithSession(ctx context.Context, sessionID, userID string) context.Context {
	ctx = context.WithValue(ctx, ctxKeySessionID, sessionID)
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

// LoggerFromContext returns the process logger enriched with any session
// fields carried by the context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	log := logger
	if sid, _ := ctx.Value(ctxKeySessionID).(string); sid != "" {
		log = log.With("session_id", sid)
	}
	if uid, _ := ctx.Value(ctxKeyUserID).(string); uid != "" {
		log = log.With("user_id", uid)
	}
	return log
}
