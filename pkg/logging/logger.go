package logging

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fields represents structured log fields
type Fields map[string]interface{}

type contextKey string

const cycleIDKey contextKey = "cycle_id"

// WithCycleID returns a context carrying the given cycle correlation ID.
// Every log line emitted with that context includes it.
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, cycleIDKey, cycleID)
}

// CycleIDFromContext extracts the cycle correlation ID, if any.
func CycleIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(cycleIDKey).(string); ok {
		return v
	}
	return ""
}

// StructuredLogger provides structured JSON logging with context
type StructuredLogger struct {
	zl      *zap.Logger
	service string
	version string
}

// NewStructuredLogger creates a logger for the given service identity.
// Output is production JSON with ISO-8601 timestamps.
func NewStructuredLogger(service, version, level string) *StructuredLogger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = parseLevel(level)
	cfg.DisableStacktrace = true

	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// The production config only fails on an invalid output path,
		// which we never set.
		zl = zap.NewNop()
	}

	return &StructuredLogger{
		zl:      zl.With(zap.String("service", service), zap.String("version", version)),
		service: service,
		version: version,
	}
}

func parseLevel(s string) zap.AtomicLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}

func (l *StructuredLogger) zapFields(ctx context.Context, fields Fields) []zap.Field {
	zfs := make([]zap.Field, 0, len(fields)+1)
	if cycleID := CycleIDFromContext(ctx); cycleID != "" {
		zfs = append(zfs, zap.String("cycle_id", cycleID))
	}
	for k, v := range fields {
		zfs = append(zfs, zap.Any(k, v))
	}
	return zfs
}

// Debug logs a debug-level message
func (l *StructuredLogger) Debug(ctx context.Context, msg string, fields Fields) {
	l.zl.Debug(msg, l.zapFields(ctx, fields)...)
}

// Info logs an info-level message
func (l *StructuredLogger) Info(ctx context.Context, msg string, fields Fields) {
	l.zl.Info(msg, l.zapFields(ctx, fields)...)
}

// Warn logs a warn-level message
func (l *StructuredLogger) Warn(ctx context.Context, msg string, fields Fields) {
	l.zl.Warn(msg, l.zapFields(ctx, fields)...)
}

// Error logs an error-level message with the causing error attached
func (l *StructuredLogger) Error(ctx context.Context, msg string, fields Fields, err error) {
	zfs := l.zapFields(ctx, fields)
	if err != nil {
		zfs = append(zfs, zap.Error(err))
	}
	l.zl.Error(msg, zfs...)
}

// Fatal logs the message then exits the process with a non-zero status
func (l *StructuredLogger) Fatal(ctx context.Context, msg string, fields Fields, err error) {
	zfs := l.zapFields(ctx, fields)
	if err != nil {
		zfs = append(zfs, zap.Error(err))
	}
	l.zl.Fatal(msg, zfs...)
}

// Sync flushes buffered log entries.
func (l *StructuredLogger) Sync() {
	_ = l.zl.Sync()
}
