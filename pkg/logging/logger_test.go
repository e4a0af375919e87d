package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zap.AtomicLevel
	}{
		{"debug", zap.NewAtomicLevelAt(zap.DebugLevel)},
		{"DEBUG", zap.NewAtomicLevelAt(zap.DebugLevel)},
		{" warn ", zap.NewAtomicLevelAt(zap.WarnLevel)},
		{"error", zap.NewAtomicLevelAt(zap.ErrorLevel)},
		{"info", zap.NewAtomicLevelAt(zap.InfoLevel)},
		{"", zap.NewAtomicLevelAt(zap.InfoLevel)},
		{"bogus", zap.NewAtomicLevelAt(zap.InfoLevel)},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got.Level() != tt.want.Level() {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got.Level(), tt.want.Level())
		}
	}
}

func TestCycleIDContext(t *testing.T) {
	ctx := context.Background()
	if got := CycleIDFromContext(ctx); got != "" {
		t.Errorf("CycleIDFromContext(empty) = %q, want empty", got)
	}

	ctx = WithCycleID(ctx, "abc-123")
	if got := CycleIDFromContext(ctx); got != "abc-123" {
		t.Errorf("CycleIDFromContext = %q, want abc-123", got)
	}
}

func TestNewStructuredLogger(t *testing.T) {
	logger := NewStructuredLogger("test-service", "0.0.0", "debug")
	if logger == nil {
		t.Fatal("NewStructuredLogger returned nil")
	}

	// Must not panic with or without fields and errors.
	ctx := WithCycleID(context.Background(), "cycle-1")
	logger.Debug(ctx, "debug message", Fields{"k": "v"})
	logger.Info(ctx, "info message", nil)
	logger.Warn(ctx, "warn message", Fields{"n": 1})
	logger.Error(ctx, "error message", Fields{}, nil)
	logger.Sync()
}
