package tuistate

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "missing"))
	require.Equal(t, "prefix", s.MatchMode)
	require.Equal(t, "M", s.ContextWindow)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := Default()
	s.MatchMode = "standard"
	s.PushQuery("first query")
	s.PushQuery("second query")

	require.NoError(t, s.Save(dir))

	loaded := Load(dir)
	require.Equal(t, "standard", loaded.MatchMode)
	require.Equal(t, []string{"second query", "first query"}, loaded.QueryHistory)
}

func TestPushQuery_PrefixReplacesMostRecent(t *testing.T) {
	s := Default()
	s.PushQuery("parser")
	s.PushQuery("pars")
	require.Equal(t, []string{"pars"}, s.QueryHistory)
}

func TestPushQuery_EmptyIsIgnored(t *testing.T) {
	s := Default()
	s.PushQuery("   ")
	require.Empty(t, s.QueryHistory)
}

func TestDedupAndCap_DropsDuplicatesAndEnforcesLimit(t *testing.T) {
	history := []string{"a", "b", "a", "c", "d"}
	got := dedupAndCap(history, 3)
	require.Equal(t, []string{"a", "b", "c"}, got)
}
