// Package logtrace wraps zap with context-carried correlation ids so that
// every line emitted for one logical SDK call can be stitched together.
package logtrace

import (
	"context"
	"log/slog"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ContextKey is the type used for values this package stores on a context.
type ContextKey string

const (
	CorrelationIDKey ContextKey = "correlation_id"
	OriginKey        ContextKey = "origin"
)

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(zap.NewNop())
}

// Setup builds the process logger. env "dev" selects the console encoder.
func Setup(serviceName, env string, level slog.Level) {
	var cfg zap.Config
	if env == "dev" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(toZapLevel(level))
	cfg.DisableStacktrace = true

	l, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		l = zap.NewNop()
	}
	current.Store(l.With(zap.String("service", serviceName)))
}

// SetLogger replaces the process logger, e.g. with an observer in tests.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

// Sync flushes buffered entries.
func Sync() {
	_ = current.Load().Sync()
}

func toZapLevel(level slog.Level) zapcore.Level {
	switch {
	case level <= slog.LevelDebug:
		return zapcore.DebugLevel
	case level <= slog.LevelInfo:
		return zapcore.InfoLevel
	case level <= slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// CtxWithCorrelationID stores a correlation id on ctx.
func CtxWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// CorrelationIDFromContext returns the correlation id or "" when unset.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return v
	}
	return ""
}

// CtxWithOrigin tags ctx with the phase or caller that produced the logs.
func CtxWithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, OriginKey, origin)
}

// OriginFromContext returns the origin tag or "".
func OriginFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(OriginKey).(string); ok {
		return v
	}
	return ""
}

func Debug(ctx context.Context, msg string, fields Fields) {
	write(ctx, zapcore.DebugLevel, msg, fields)
}

func Info(ctx context.Context, msg string, fields Fields) {
	write(ctx, zapcore.InfoLevel, msg, fields)
}

func Warn(ctx context.Context, msg string, fields Fields) {
	write(ctx, zapcore.WarnLevel, msg, fields)
}

func Error(ctx context.Context, msg string, fields Fields) {
	write(ctx, zapcore.ErrorLevel, msg, fields)
}

func write(ctx context.Context, level zapcore.Level, msg string, fields Fields) {
	l := current.Load()
	if ce := l.Check(level, msg); ce != nil {
		ce.Write(toZapFields(ctx, fields)...)
	}
}

func toZapFields(ctx context.Context, fields Fields) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+2)
	if cid := CorrelationIDFromContext(ctx); cid != "" {
		out = append(out, zap.String(FieldCorrelationID, cid))
	}
	if origin := OriginFromContext(ctx); origin != "" {
		out = append(out, zap.String(FieldOrigin, origin))
	}
	for k, v := range fields {
		if err, ok := v.(error); ok {
			out = append(out, zap.String(k, err.Error()))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
