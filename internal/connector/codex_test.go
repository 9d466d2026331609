package connector

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/cass/internal/model"
)

// TestCodexConnector_RolloutJSONLWithAgentReasoning covers the modern
// rollout format: a session_meta envelope carries the workspace cwd, an
// event_msg/user_message becomes a user turn, and an event_msg/
// agent_reasoning becomes an assistant turn authored "reasoning" per
// SPEC_FULL's promotion rule.
func TestCodexConnector_RolloutJSONLWithAgentReasoning(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "codex", "sessions")
	require.NoError(t, os.MkdirAll(dir, 0o700))

	lines := []string{
		`{"type":"session_meta","timestamp":1000,"payload":{"cwd":"/work/proj"}}`,
		`{"type":"event_msg","timestamp":1001,"payload":{"type":"user_message","message":"please fix the bug"}}`,
		`{"type":"event_msg","timestamp":1002,"payload":{"type":"agent_reasoning","text":"checking the parser first"}}`,
		`{"type":"response_item","timestamp":1003,"payload":{"role":"assistant","content":"fixed, see the diff"}}`,
	}
	path := filepath.Join(dir, "rollout-2026-01-01-abc.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	c := NewCodexConnector()
	convs, err := c.Scan(ScanContext{DataDir: filepath.Dir(dir)})
	require.NoError(t, err)
	require.Len(t, convs, 1)

	conv := convs[0]
	require.Equal(t, "/work/proj", conv.Workspace)
	require.Len(t, conv.Messages, 3)

	require.Equal(t, model.RoleUser, conv.Messages[0].Role)
	require.Equal(t, "please fix the bug", conv.Messages[0].Content)

	require.Equal(t, model.RoleAssistant, conv.Messages[1].Role)
	require.Equal(t, "reasoning", conv.Messages[1].Author)
	require.Equal(t, "checking the parser first", conv.Messages[1].Content)

	require.Equal(t, model.Role("assistant"), conv.Messages[2].Role)
	require.Equal(t, "fixed, see the diff", conv.Messages[2].Content)

	for i, m := range conv.Messages {
		require.Equal(t, i, m.Idx)
	}
	require.Equal(t, "rollout", conv.Origin()["source"])
}

// TestCodexConnector_LegacyJSONFallback covers the older single-JSON
// {session, items} rollout shape still found on disk for pre-rollout-v2
// installs.
func TestCodexConnector_LegacyJSONFallback(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "codex", "sessions")
	require.NoError(t, os.MkdirAll(dir, 0o700))

	content := `{
		"session": {"cwd": "/work/legacy"},
		"items": [
			{"role": "user", "content": "hello", "timestamp": 1000},
			{"role": "assistant", "content": "hi there", "timestamp": 1001}
		]
	}`
	path := filepath.Join(dir, "rollout-legacy.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c := NewCodexConnector()
	convs, err := c.Scan(ScanContext{DataDir: filepath.Dir(dir)})
	require.NoError(t, err)
	require.Len(t, convs, 1)

	conv := convs[0]
	require.Equal(t, "/work/legacy", conv.Workspace)
	require.Len(t, conv.Messages, 2)
	require.Equal(t, "hello", conv.Messages[0].Content)
	require.Equal(t, "hi there", conv.Messages[1].Content)
	require.Equal(t, "rollout_json", conv.Origin()["source"])
}

func TestCodexConnector_NoSessionsDirYieldsEmpty(t *testing.T) {
	dir := t.TempDir()
	c := NewCodexConnector()
	convs, err := c.Scan(ScanContext{DataDir: filepath.Join(dir, "codex")})
	require.NoError(t, err)
	require.Empty(t, convs)
}
