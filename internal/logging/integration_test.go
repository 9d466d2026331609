// internal/logging/integration_test.go
package logging

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestIntegration_FullLoggingPipeline(t *testing.T) {
	// Create config
	cfg := NewDefaultConfig()
	cfg.Level = TraceLevel
	cfg.Format = "json"
	cfg.Output.Stdout = true
	cfg.Sampling.Enabled = false // Disable for predictable test

	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	defer func() {
		// Ignore sync errors on stdout/stderr (common on some systems)
		_ = logger.Sync()
	}()

	ctx := WithConnector(context.Background(), "codex")

	// Log at all levels with various fields
	logger.Trace(ctx, "trace message", zap.String("detail", "ultra-verbose"))
	logger.Debug(ctx, "debug message", zap.String("file", "rollout-2026-01-01.jsonl"))
	logger.Info(ctx, "info message", zap.Duration("duration", 45*time.Millisecond))
	logger.Warn(ctx, "warn message", zap.Int("retry_attempt", 2))
	logger.Error(ctx, "error message", zap.Error(fmt.Errorf("test error")))

	// Test child logger
	child := logger.With(zap.String("component", "scan"))
	child.Info(ctx, "child log")

	// Test named logger
	named := logger.Named("subsystem")
	named.Info(ctx, "named log")

	// Sync may fail on stdout/stderr in some environments (e.g., CI, testing frameworks)
	// This is expected behavior - zap's Sync() attempts to fsync stdout which fails
	// when stdout is not a regular file. We just ensure no panic occurs.
	_ = logger.Sync()
}

func TestIntegration_ContextFieldInjection(t *testing.T) {
	tl := NewTestLogger()

	ctx := WithConnector(context.Background(), "codex")

	tl.Info(ctx, "scan record skipped", zap.String("reason", "malformed json"))

	tl.AssertLogged(t, zapcore.InfoLevel, "scan record skipped")
	tl.AssertConnector(t, "scan record skipped", "codex")
	tl.AssertField(t, "scan record skipped", "reason", "malformed json")
}
