package connector

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/cass/internal/model"
)

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	_, err := db.Exec(query, args...)
	require.NoError(t, err)
}

// TestCursorConnector_ComposerWithThreeBubbles is the literal §8 scenario
// 3: a composerData row naming three bubble headers, each resolved via a
// lazy per-composer bubbleId:<composerId>:<bubbleId> lookup rather than a
// whole-table slurp.
func TestCursorConnector_ComposerWithThreeBubbles(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.vscdb")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	mustExec(t, db, `CREATE TABLE cursorDiskKV (key TEXT PRIMARY KEY, value TEXT)`)
	mustExec(t, db, `CREATE TABLE ItemTable (key TEXT PRIMARY KEY, value TEXT)`)

	composer := map[string]any{
		"createdAt": float64(1000),
		"fullConversationHeadersOnly": []any{
			map[string]any{"bubbleId": "b1"},
			map[string]any{"bubbleId": "b2"},
			map[string]any{"bubbleId": "b3"},
		},
	}
	composerJSON, err := json.Marshal(composer)
	require.NoError(t, err)
	mustExec(t, db, `INSERT INTO cursorDiskKV(key, value) VALUES (?, ?)`, "composerData:abc", string(composerJSON))

	bubbles := map[string]map[string]any{
		"b1": {"type": float64(1), "text": "please fix the parser"},
		"b2": {"type": float64(2), "text": "looking into it"},
		"b3": {"type": float64(2), "text": "fixed, see the diff"},
	}
	for id, b := range bubbles {
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		mustExec(t, db, `INSERT INTO cursorDiskKV(key, value) VALUES (?, ?)`, "bubbleId:abc:"+id, string(raw))
	}
	require.NoError(t, db.Close())

	c := NewCursorConnector()
	convs, err := c.extractFromDB(dbPath)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	conv := convs[0]
	require.Len(t, conv.Messages, 3)
	require.Equal(t, []model.Role{model.RoleUser, model.RoleAssistant, model.RoleAssistant},
		[]model.Role{conv.Messages[0].Role, conv.Messages[1].Role, conv.Messages[2].Role})
	require.Equal(t, "please fix the parser", conv.Messages[0].Content)
	require.True(t, filepath.Base(conv.SourcePath) == "abc", "source_path %q must end in /abc", conv.SourcePath)
}

func TestCursorConnector_LazyBubbleFetchIsScopedToOneComposer(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.vscdb")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	mustExec(t, db, `CREATE TABLE cursorDiskKV (key TEXT PRIMARY KEY, value TEXT)`)
	mustExec(t, db, `CREATE TABLE ItemTable (key TEXT PRIMARY KEY, value TEXT)`)

	mustExec(t, db, `INSERT INTO cursorDiskKV(key, value) VALUES (?, ?)`,
		"bubbleId:other-composer:x1", `{"type":1,"text":"unrelated"}`)
	mustExec(t, db, `INSERT INTO cursorDiskKV(key, value) VALUES (?, ?)`,
		"bubbleId:abc:b1", `{"type":1,"text":"mine"}`)

	c := NewCursorConnector()
	got := c.fetchBubbleDataForComposer(db, "abc")
	require.Len(t, got, 1)
	_, ok := got["b1"]
	require.True(t, ok)
	require.NoError(t, db.Close())
}
