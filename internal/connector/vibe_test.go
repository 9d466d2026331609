package connector

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/cass/internal/model"
)

func TestVibeConnector_NestedSessionMessages(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".vibe", "logs", "session", "abc123")
	require.NoError(t, os.MkdirAll(root, 0o700))

	lines := []string{
		`{"role":"user","content":"please fix","timestamp":1000}`,
		`{"role":"assistant","content":"on it","timestamp":1001}`,
	}
	path := filepath.Join(root, "messages.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	c := NewVibeConnector()
	convs, err := c.Scan(ScanContext{DataDir: filepath.Dir(root)})
	require.NoError(t, err)
	require.Len(t, convs, 1)

	conv := convs[0]
	require.Equal(t, "abc123", conv.ExternalID)
	require.Len(t, conv.Messages, 2)
	require.Equal(t, model.RoleUser, conv.Messages[0].Role)
	require.Equal(t, "please fix", conv.Messages[0].Content)
	require.Equal(t, model.RoleAssistant, conv.Messages[1].Role)
}
