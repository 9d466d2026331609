// Package connector implements one scanner per supported coding agent,
// each reverse-engineering that agent's on-disk conversation format into
// the shared model.Conversation shape. Detection is advisory: the indexer
// runs every registered connector regardless of what Detect reports.
package connector

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/cass/internal/model"
)

// Conversation is the shape every connector emits; aliased here so
// connector implementations don't need to import model directly for
// their exported signatures.
type Conversation = model.Conversation

// DetectionResult reports whether an agent's data appears to exist on
// this machine, without being load-bearing for whether Scan is called.
type DetectionResult struct {
	Detected  bool
	Evidence  []string
	RootPaths []string
}

func notFound() DetectionResult {
	return DetectionResult{}
}

// ScanRoot is one explicit root the caller wants scanned, bypassing
// default detection for that connector.
type ScanRoot struct {
	Path string
}

// ScanContext carries the parameters every connector scan needs.
type ScanContext struct {
	// DataDir overrides the connector's default storage location, used by
	// tests. The cursor, cline, vibe and clawdbot connectors ignore it when
	// ScanRoots is non-empty. pi_agent, when ScanRoots is non-empty, scans
	// DataDir if it looks like pi storage; aider, claude_code, codex and
	// gemini read DataDir whatever ScanRoots holds.
	DataDir string

	// ScanRoots, when non-empty, bypasses default detection in the cursor,
	// cline, vibe and clawdbot connectors: only these roots are considered.
	// The aider, claude_code, codex, gemini and pi_agent connectors do not
	// read ScanRoots.
	ScanRoots []ScanRoot

	// SinceMs is the incremental-scan checkpoint; nil means a full scan.
	SinceMs *int64

	// HomeDir overrides the process home directory lookup, for tests.
	HomeDir string
}

// UseDefaultDetection reports whether this context should fall back to a
// connector's default storage location when DataDir doesn't look like
// this agent's shape. False once explicit ScanRoots are supplied.
func (c ScanContext) UseDefaultDetection() bool {
	return len(c.ScanRoots) == 0
}

// Home returns the effective home directory: the override if set, else
// the process's real home directory (or "" if that can't be determined).
func (c ScanContext) Home() string {
	if c.HomeDir != "" {
		return c.HomeDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}

// Connector is the per-agent implementation: detect whether this agent's
// data exists, and scan it into normalized conversations.
type Connector interface {
	// Slug is the short agent identifier, e.g. "codex".
	Slug() string

	// Detect reports whether this agent's on-disk data appears to exist.
	Detect(ctx ScanContext) DetectionResult

	// Scan walks this agent's storage and returns normalized
	// conversations. A non-nil error aborts this connector's run; other
	// connectors still run. Malformed individual records are skipped,
	// not surfaced as errors.
	Scan(ctx ScanContext) ([]Conversation, error)
}

// Registry is the static list of connectors the indexer runs each scan.
func Registry() []Connector {
	return []Connector{
		NewAiderConnector(),
		NewClaudeCodeConnector(),
		NewCodexConnector(),
		NewCursorConnector(),
		NewClineConnector(),
		NewGeminiConnector(),
		NewVibeConnector(),
		NewClawdbotConnector(),
		NewPiAgentConnector(),
	}
}

// dirExists reports whether path exists and is a directory.
func dirExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// looksLike reports whether path's final component contains needle
// (case-insensitive). No connector calls it; each one carries its own
// path heuristic for deciding whether a test-supplied DataDir should be
// treated as its agent's storage root.
func looksLike(path, needle string) bool {
	base := strings.ToLower(filepath.Base(path))
	return strings.Contains(base, strings.ToLower(needle))
}

// pathContains reports whether the full path contains needle
// (case-insensitive), used when the agent-specific substring can appear
// anywhere in the path rather than just the final component.
func pathContains(path, needle string) bool {
	return strings.Contains(strings.ToLower(path), strings.ToLower(needle))
}

// localHostname caches os.Hostname() for stampLocalOrigin; failures
// resolve to "" rather than aborting a scan.
var localHostname = func() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}()

// stampLocalOrigin fills the reserved cass.origin provenance keys (spec
// §3.1: source_id/kind/host) every connector must populate so C4's
// provenance filters have something to match against. cass only ever
// reads an agent's own on-disk storage directly, so kind is always
// "local"; source_id and host both identify the machine the scan ran on.
func stampLocalOrigin(conv *Conversation) {
	origin := conv.Origin()
	origin["source_id"] = localHostname
	origin["kind"] = "local"
	origin["host"] = localHostname
}
