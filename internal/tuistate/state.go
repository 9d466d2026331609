// Package tuistate persists the TUI's cross-session preferences
// (tui_state.json in spec §6): match mode, context window, density,
// query history, and saved filter views. internal/tui owns reading and
// writing it; the query engine itself is stateless.
package tuistate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

const historyCap = 50

// SavedView is one of the nine numbered filter/ranking presets the UI
// can apply via a number-key shortcut.
type SavedView struct {
	Slot        int      `json:"slot"`
	Agents      []string `json:"agents,omitempty"`
	Workspaces  []string `json:"workspaces,omitempty"`
	CreatedFrom *int64   `json:"created_from,omitempty"`
	CreatedTo   *int64   `json:"created_to,omitempty"`
	Ranking     string   `json:"ranking,omitempty"`
}

// State is the on-disk shape of tui_state.json.
type State struct {
	MatchMode     string      `json:"match_mode"`
	ContextWindow string      `json:"context_window"`
	DensityMode   string      `json:"density_mode"`
	HasSeenHelp   bool        `json:"has_seen_help"`
	QueryHistory  []string    `json:"query_history"`
	SavedViews    []SavedView `json:"saved_views,omitempty"`
	HelpPinned    bool        `json:"help_pinned"`
}

// Default returns the state a first-run TUI starts from.
func Default() *State {
	return &State{
		MatchMode:     "prefix",
		ContextWindow: "M",
		DensityMode:   "comfortable",
	}
}

func path(dataDir string) string {
	return filepath.Join(dataDir, "tui_state.json")
}

// Load reads tui_state.json from dataDir, returning Default() if it
// doesn't exist or fails to parse (a corrupt preferences file should
// never block the TUI from starting).
func Load(dataDir string) *State {
	data, err := os.ReadFile(path(dataDir))
	if err != nil {
		return Default()
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return Default()
	}
	if s.MatchMode == "" {
		s.MatchMode = "prefix"
	}
	return &s
}

// Save writes s to tui_state.json after capping history at historyCap
// entries and dropping exact repeats. The prefix rule of PushQuery is not
// re-applied here.
func (s *State) Save(dataDir string) error {
	s.QueryHistory = dedupAndCap(s.QueryHistory, historyCap)
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := path(dataDir) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path(dataDir))
}

// PushQuery records a submitted query at the front of history, capped at
// historyCap with prefix-dedup applied: a new query that is a prefix of
// (or equal to) the most recent entry replaces it rather than appending.
func (s *State) PushQuery(q string) {
	q = strings.TrimSpace(q)
	if q == "" {
		return
	}
	if len(s.QueryHistory) > 0 && strings.HasPrefix(s.QueryHistory[0], q) {
		s.QueryHistory[0] = q
		return
	}
	s.QueryHistory = append([]string{q}, s.QueryHistory...)
	s.QueryHistory = dedupAndCap(s.QueryHistory, historyCap)
}

func dedupAndCap(history []string, limit int) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(history))
	for _, q := range history {
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
		if len(out) >= limit {
			break
		}
	}
	return out
}
