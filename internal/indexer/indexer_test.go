package indexer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/cass/internal/connector"
	"github.com/fyrsmithlabs/cass/internal/model"
	"github.com/fyrsmithlabs/cass/internal/searchindex"
	"github.com/fyrsmithlabs/cass/internal/store"
)

// fakeConnector returns a fixed set of conversations and records the
// SinceMs it was scanned with, so tests can assert checkpoint wiring
// without touching any real agent's on-disk files.
type fakeConnector struct {
	slug        string
	convs       []model.Conversation
	lastSinceMs *int64
	err         error
}

func (f *fakeConnector) Slug() string { return f.slug }
func (f *fakeConnector) Detect(connector.ScanContext) connector.DetectionResult {
	return connector.DetectionResult{Detected: true}
}
func (f *fakeConnector) Scan(ctx connector.ScanContext) ([]connector.Conversation, error) {
	f.lastSinceMs = ctx.SinceMs
	if f.err != nil {
		return nil, f.err
	}
	return f.convs, nil
}

func newTestIndexer(t *testing.T) (*Indexer, *fakeConnector) {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "agent_search.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	idx, err := searchindex.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	fc := &fakeConnector{
		slug: "fake",
		convs: []model.Conversation{
			{
				AgentSlug:  "fake",
				SourcePath: "/fake/one.json",
				Title:      "hello",
				Messages: []model.Message{
					{Role: model.RoleUser, Content: "hello there"},
					{Role: model.RoleAssistant, Content: "hi back"},
				},
			},
		},
	}

	ix := New(st, idx, zaptest.NewLogger(t))
	ix.Connectors = []connector.Connector{fc}
	return ix, fc
}

func TestScanAll_IndexesAndAdvancesCheckpoint(t *testing.T) {
	ix, fc := newTestIndexer(t)
	ctx := context.Background()

	results, err := ix.ScanAll(ctx, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.Equal(t, 1, results[0].ConversationsIn)
	require.Equal(t, 2, results[0].MessagesIn)
	require.Nil(t, fc.lastSinceMs, "a fresh checkpoint means the first scan has no lower bound")

	cp, err := ix.Store.GetCheckpoint(ctx, "fake")
	require.NoError(t, err)
	require.NotNil(t, cp)

	// Both messages carry the conversation title "hello", and the title is
	// indexed on every message document, so both match.
	hits, total, err := ix.Index.Search("hello", searchindex.Filters{}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, hits, 2)
}

func TestScanAll_ConnectorErrorDoesNotAdvanceCheckpoint(t *testing.T) {
	ix, fc := newTestIndexer(t)
	ctx := context.Background()
	fc.err = assertError{"boom"}

	results, err := ix.ScanAll(ctx, false)
	require.NoError(t, err)
	require.Error(t, results[0].Err)

	cp, err := ix.Store.GetCheckpoint(ctx, "fake")
	require.NoError(t, err)
	require.Nil(t, cp, "a failed scan must leave the checkpoint untouched")
}

func TestScanAll_FullIgnoresStoredCheckpoint(t *testing.T) {
	ix, fc := newTestIndexer(t)
	ctx := context.Background()

	_, err := ix.ScanAll(ctx, false)
	require.NoError(t, err)

	_, err = ix.ScanAll(ctx, true)
	require.NoError(t, err)
	require.Nil(t, fc.lastSinceMs, "full scans always pass a nil SinceMs")
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
