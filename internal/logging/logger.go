// Package logging defines the structured-logging interface used across
// authcore, with slog and zap implementations.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "login succeeded", "user_id", id, "token_id", jti)
//
// Callers must never pass passwords, password hashes or refresh token values.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

// Supported values for the LOG_FORMAT setting.
const (
	FormatJSON = "json"
	FormatText = "text"
	FormatZap  = "zap"
)

// New builds a Logger writing to w in the requested format.
func New(format string, w io.Writer) (Logger, error) {
	switch format {
	case FormatJSON, "":
		return NewSlogLogger(slog.New(slog.NewJSONHandler(w, HandlerOptions(slog.LevelInfo)))), nil
	case FormatText:
		return NewSlogLogger(slog.New(slog.NewTextHandler(w, HandlerOptions(slog.LevelInfo)))), nil
	case FormatZap:
		enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		core := zapcore.NewCore(enc, zapcore.AddSync(w), zapcore.InfoLevel)
		return NewZapLogger(zap.New(core)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// Discard returns a Logger that drops everything. Useful in tests.
func Discard() Logger {
	return NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}
