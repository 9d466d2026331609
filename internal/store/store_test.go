package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/cass/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	st, err := Open(filepath.Join(dir, "agent_search.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestUpsertConversations_NewConversationCreatesAgentAndMessages(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	conv := model.Conversation{
		AgentSlug:  "codex",
		SourcePath: "/home/u/.codex/sessions/a.jsonl",
		Title:      "fix the bug",
		Workspace:  "/home/u/proj",
		Messages: []model.Message{
			{Idx: 0, Role: model.RoleUser, Content: "please fix"},
			{Idx: 1, Role: model.RoleAssistant, Content: "looking into it"},
		},
	}
	require.NoError(t, st.UpsertConversations(ctx, []model.Conversation{conv}))

	agents, err := st.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	require.Equal(t, "codex", agents[0].Slug)
	require.Equal(t, 1, agents[0].ConvCount)

	detail, err := st.GetConversationBySourcePath(ctx, conv.SourcePath)
	require.NoError(t, err)
	require.NotNil(t, detail)
	require.Len(t, detail.Messages, 2)
	require.Equal(t, "please fix", detail.Messages[0].Content)
	require.Equal(t, "/home/u/proj", detail.Conversation.Workspace)
}

// TestUpsertConversations_SamePathAppendsOnlyNewMessages covers the
// upsert-by-source_path contract: a second upsert against the same
// source_path updates the row and appends messages only for idx values
// not already present, without creating a second agents row or a second
// conversation.
func TestUpsertConversations_SamePathAppendsOnlyNewMessages(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first := model.Conversation{
		AgentSlug:  "codex",
		SourcePath: "/home/u/.codex/sessions/a.jsonl",
		Title:      "fix the bug",
		Messages: []model.Message{
			{Idx: 0, Role: model.RoleUser, Content: "please fix"},
		},
	}
	require.NoError(t, st.UpsertConversations(ctx, []model.Conversation{first}))

	second := model.Conversation{
		AgentSlug:  "codex",
		SourcePath: "/home/u/.codex/sessions/a.jsonl",
		Title:      "fix the bug",
		Messages: []model.Message{
			{Idx: 0, Role: model.RoleUser, Content: "please fix"},
			{Idx: 1, Role: model.RoleAssistant, Content: "done"},
		},
	}
	require.NoError(t, st.UpsertConversations(ctx, []model.Conversation{second}))

	agents, err := st.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	require.Equal(t, 1, agents[0].ConvCount, "re-upserting the same source_path must not create a second conversation")

	detail, err := st.GetConversationBySourcePath(ctx, first.SourcePath)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 2)
	require.Equal(t, 0, detail.Messages[0].Idx)
	require.Equal(t, 1, detail.Messages[1].Idx)
}

func TestCheckpoints_AdvanceAndLookup(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	cp, err := st.GetCheckpoint(ctx, "codex")
	require.NoError(t, err)
	require.Nil(t, cp, "an unseen connector has no checkpoint")

	require.NoError(t, st.SetCheckpoint(ctx, "codex", 1000))
	cp, err = st.GetCheckpoint(ctx, "codex")
	require.NoError(t, err)
	require.NotNil(t, cp)
	require.Equal(t, int64(1000), *cp)

	require.NoError(t, st.SetCheckpoint(ctx, "codex", 2000))
	cp, err = st.GetCheckpoint(ctx, "codex")
	require.NoError(t, err)
	require.Equal(t, int64(2000), *cp)
}

// TestListAgents_OrderedByConvCountDescThenNameAsc matches §4.3's
// list_agents() ordering contract.
func TestListAgents_OrderedByConvCountDescThenNameAsc(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	convs := []model.Conversation{
		{AgentSlug: "aider", SourcePath: "/a/1", Messages: []model.Message{{Content: "x"}}},
		{AgentSlug: "codex", SourcePath: "/c/1", Messages: []model.Message{{Content: "x"}}},
		{AgentSlug: "codex", SourcePath: "/c/2", Messages: []model.Message{{Content: "x"}}},
		{AgentSlug: "cursor", SourcePath: "/u/1", Messages: []model.Message{{Content: "x"}}},
		{AgentSlug: "cursor", SourcePath: "/u/2", Messages: []model.Message{{Content: "x"}}},
	}
	for _, c := range convs {
		model.Reindex(c.Messages)
	}
	require.NoError(t, st.UpsertConversations(ctx, convs))

	agents, err := st.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 3)
	// codex and cursor tie at 2 conversations; name ASC breaks the tie.
	require.Equal(t, "codex", agents[0].Slug)
	require.Equal(t, "cursor", agents[1].Slug)
	require.Equal(t, "aider", agents[2].Slug)
}

func TestListWorkspaces_AggregatesPerAgentCounts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	convs := []model.Conversation{
		{AgentSlug: "codex", Workspace: "/home/u/proj", SourcePath: "/c/1", Messages: []model.Message{{Content: "x"}}},
		{AgentSlug: "cursor", Workspace: "/home/u/proj", SourcePath: "/u/1", Messages: []model.Message{{Content: "x"}}},
	}
	require.NoError(t, st.UpsertConversations(ctx, convs))

	workspaces, err := st.ListWorkspaces(ctx)
	require.NoError(t, err)
	require.Len(t, workspaces, 1)
	require.Equal(t, "/home/u/proj", workspaces[0].Path)
	require.Equal(t, 2, workspaces[0].TotalConvs)
	require.Equal(t, 1, workspaces[0].ConvCounts["codex"])
	require.Equal(t, 1, workspaces[0].ConvCounts["cursor"])
}

func TestOpenReadOnly_MatchingSchemaSucceeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent_search.db")

	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	ro, err := OpenReadOnly(path)
	require.NoError(t, err)
	require.NotNil(t, ro)
	require.NoError(t, ro.Close())
}

// TestOpenReadOnly_SchemaMismatchSurfacesError covers §6/§7: a stored
// schema_hash that doesn't match the code's constant must surface
// ErrSchemaMismatch rather than serve reads against a stale shape.
func TestOpenReadOnly_SchemaMismatchSurfacesError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent_search.db")

	st, err := Open(path)
	require.NoError(t, err)
	_, err = st.db.Exec(`INSERT OR REPLACE INTO index_meta(key, value) VALUES ('schema_hash', 'stale-hash')`)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = OpenReadOnly(path)
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestOpenReadOnly_MissingDatabaseIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenReadOnly(filepath.Join(dir, "does-not-exist.db"))
	require.Error(t, err)
}
