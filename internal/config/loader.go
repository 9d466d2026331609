package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap/zapcore"
)

// Load builds a Config from defaults overridden by environment variables.
//
// Environment variable mapping (underscore separator, uppercased):
//
//	CASS_DATA_DIR              -> DataDir
//	CASS_DEBUG_CACHE_METRICS   -> DebugCacheMetrics
//	CASS_LOGGING_LEVEL         -> Logging.Level
//	CASS_LOGGING_FORMAT        -> Logging.Format
//
// Connector home-directory overrides (CODEX_HOME, GEMINI_HOME,
// PI_CODING_AGENT_DIR) are read directly by their connectors in
// internal/connector, not through this loader: they aren't cass-specific
// settings, they're the upstream agent's own env var convention.
func Load() (*Config, error) {
	cfg := NewDefaultConfig()

	k := koanf.New(".")
	if err := k.Load(env.Provider("CASS_", ".", envKeyTransformer), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if v, ok := k.Get("data_dir").(string); ok && v != "" {
		cfg.DataDir = v
	}
	if k.Exists("debug_cache_metrics") {
		cfg.DebugCacheMetrics = k.Bool("debug_cache_metrics")
	}
	if v, ok := k.Get("logging.level").(string); ok && v != "" {
		lvl, err := zapcore.ParseLevel(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CASS_LOGGING_LEVEL %q: %w", v, err)
		}
		cfg.Logging.Level = lvl
	}
	if v, ok := k.Get("logging.format").(string); ok && v != "" {
		cfg.Logging.Format = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envKeyTransformer maps CASS_-prefixed env var names (env.Provider passes
// the full name, prefix included) to koanf keys, stripping the prefix. Only
// a single level of nesting is supported under "logging.", matching cass's
// small surface, not contextd's deeper section.field_name scheme.
func envKeyTransformer(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, "CASS_"))
	if strings.HasPrefix(lower, "logging_") {
		return "logging." + strings.TrimPrefix(lower, "logging_")
	}
	return lower
}
