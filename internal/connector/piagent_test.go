package connector

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/cass/internal/model"
)

// TestPiAgentConnector_ModelChangeTracksLatestProvider covers the
// model_change/thinking_level_change envelope mix: non-content entries
// don't surface as messages, but a model_change updates the provider and
// model stamped onto the conversation's origin metadata.
func TestPiAgentConnector_ModelChangeTracksLatestProvider(t *testing.T) {
	home := filepath.Join(t.TempDir(), ".pi", "agent")
	sessionDir := filepath.Join(home, "sessions")
	require.NoError(t, os.MkdirAll(sessionDir, 0o700))

	lines := []string{
		`{"type":"session","id":"sess-1","cwd":"/work/proj","provider":"anthropic","modelId":"claude-a","timestamp":1000}`,
		`{"type":"message","timestamp":1001,"message":{"role":"user","content":"please fix"}}`,
		`{"type":"thinking_level_change","level":"high"}`,
		`{"type":"model_change","provider":"openai","modelId":"gpt-x"}`,
		`{"type":"message","timestamp":1002,"message":{"role":"assistant","model":"gpt-x","content":"done"}}`,
	}
	path := filepath.Join(sessionDir, "1700000000_abc.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	c := NewPiAgentConnector()
	convs, err := c.Scan(ScanContext{DataDir: home})
	require.NoError(t, err)
	require.Len(t, convs, 1)

	conv := convs[0]
	require.Equal(t, "/work/proj", conv.Workspace)
	require.Len(t, conv.Messages, 2)
	require.Equal(t, model.RoleUser, conv.Messages[0].Role)
	require.Equal(t, model.RoleAssistant, conv.Messages[1].Role)
	require.Equal(t, "gpt-x", conv.Messages[1].Author)

	origin := conv.Origin()
	require.Equal(t, "sess-1", origin["session_id"])
	require.Equal(t, "openai", origin["provider"], "model_change must override the session-start provider")
	require.Equal(t, "gpt-x", origin["model_id"])
}
