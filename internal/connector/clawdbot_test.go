package connector

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/cass/internal/model"
)

func TestClawdbotConnector_FlatSessionFiles(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".clawdbot", "sessions")
	require.NoError(t, os.MkdirAll(root, 0o700))

	lines := []string{
		`{"role":"user","content":"ping","timestamp":1000}`,
		`{"role":"assistant","content":"pong","timestamp":1001}`,
	}
	path := filepath.Join(root, "2026-01-01-xyz.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	c := NewClawdbotConnector()
	convs, err := c.Scan(ScanContext{DataDir: root})
	require.NoError(t, err)
	require.Len(t, convs, 1)

	conv := convs[0]
	require.Equal(t, "2026-01-01-xyz", conv.ExternalID)
	require.Len(t, conv.Messages, 2)
	require.Equal(t, model.RoleUser, conv.Messages[0].Role)
	require.Equal(t, "ping", conv.Messages[0].Content)
	require.Equal(t, model.RoleAssistant, conv.Messages[1].Role)
	require.Equal(t, "pong", conv.Messages[1].Content)
}
