// Package config provides configuration loading for cass.
//
// Configuration is loaded from environment variables with sensible
// defaults, following the layered koanf pattern contextd used for its
// server config, scaled down to what a local CLI needs: a data directory
// and a logging config.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/cass/internal/logging"
)

// Config holds the complete cass configuration.
type Config struct {
	// DataDir is the directory cass stores its SQLite database and
	// full-text index under. Defaults to ~/.cass.
	DataDir string `koanf:"data_dir"`

	// DebugCacheMetrics turns on the search cache's hit/miss/reload
	// counters in the TUI footer. Off by default: it's debugging noise
	// for anyone not actively tuning the cache.
	DebugCacheMetrics bool `koanf:"debug_cache_metrics"`

	Logging logging.Config `koanf:"logging"`
}

// NewDefaultConfig returns a Config with cass's defaults: a data directory
// under the user's home, info-level JSON logging, and cache metrics off.
func NewDefaultConfig() *Config {
	return &Config{
		DataDir:           defaultDataDir(),
		DebugCacheMetrics: false,
		Logging:           *logging.NewDefaultConfig(),
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cass"
	}
	return filepath.Join(home, ".cass")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// EnsureDataDir creates the configured data directory if it doesn't exist,
// with owner-only permissions since it holds the user's conversation
// history.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", c.DataDir, err)
	}
	return nil
}
