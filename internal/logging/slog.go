package logging

import (
	"context"
	"log/slog"
	"strings"
)

const redactedValue = "[REDACTED]"

// sensitiveKeys are attribute keys whose values are masked by every backend.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"password_hash": {},
	"refresh_token": {},
	"access_token":  {},
	"cookie":        {},
	"authorization": {},
}

func isSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

// HandlerOptions returns slog handler options at level that mask the values
// of sensitive keys.
func HandlerOptions(level slog.Leveler) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if isSensitive(a.Key) {
				return slog.String(a.Key, redactedValue)
			}
			return a
		},
	}
}

// SlogLogger adapts *slog.Logger to Logger. Debug calls are dropped early
// when the handler is not enabled for debug, so sweeps and token rejections
// cost nothing at the default level.
type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	if !s.l.Enabled(ctx, slog.LevelDebug) {
		return
	}
	s.l.DebugContext(ctx, msg, args...)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.l.InfoContext(ctx, msg, args...)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.l.WarnContext(ctx, msg, args...)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.l.ErrorContext(ctx, msg, args...)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(args...)}
}
