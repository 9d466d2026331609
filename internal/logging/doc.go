// Package logging provides structured logging for cass's scan and search
// paths.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Stdout output, JSON or console encoded
//   - Automatic context field injection (the connector slug a scan record
//     was skipped under)
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
// Create logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx := logging.WithConnector(ctx, "codex")
//	logger.Debug(ctx, "skipped malformed record", zap.String("file", path))
//
// Output includes automatic correlation:
//
//	{
//	  "ts": "2026-07-31T10:15:30Z",
//	  "level": "debug",
//	  "msg": "skipped malformed record",
//	  "connector": "codex",
//	  "file": "rollout-2026-01-01.jsonl"
//	}
//
// # Configuration Precedence
//
// Configuration follows cass's standard precedence:
//  1. Defaults (NewDefaultConfig)
//  2. Environment variables (CASS_LOGGING_*)
//
// # Sampling
//
// Sampling prevents log floods during a scan over thousands of skipped
// malformed records. Trace, Debug, Info and Warn entries share one zap
// sampler built from the Info entry of Sampling.Levels (default: first
// 100 per message each tick, then 1 every 10); the Trace, Debug and Warn
// entries of Sampling.Levels are not read. Error and above are never
// sampled.
//
// Disable for debugging:
//
//	cfg.Sampling.Enabled = false
//
// # Testing
//
// Use TestLogger for test assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
//
// # Concurrency Safety
//
// Logger is safe for concurrent use. Child loggers (With, Named) are
// independent and do not affect parent or siblings.
package logging
