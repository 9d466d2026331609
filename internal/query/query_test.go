package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/cass/internal/searchindex"
)

func TestRewriteQuery_PrefixModeAppendsWildcard(t *testing.T) {
	require.Equal(t, "foo* bar*", rewriteQuery("foo bar", MatchModePrefix))
	require.Equal(t, "foo* bar*", rewriteQuery("foo* bar*", MatchModePrefix))
	require.Equal(t, "foo bar", rewriteQuery("foo bar", MatchModeStandard))
}

func TestWildcardBroaden_OnlyTouchesBareAlnumTerms(t *testing.T) {
	require.Equal(t, "*foo* *bar*", wildcardBroaden("foo bar"))
	require.Equal(t, "foo* *bar*", wildcardBroaden("foo* bar"))
	require.Equal(t, "*foo*", wildcardBroaden("foo"))
}

// TestBlendScore_RankingModesScenario is the literal numeric scenario from
// the ranking-mode spec: two hits A=(raw=5.0, created=1000) and
// B=(raw=1.0, created=9000), max_created=9000.
func TestBlendScore_RankingModesScenario(t *testing.T) {
	const maxCreated = 9000

	balancedA := blendScore(5.0, searchindex.MatchExact, 1000, maxCreated, RankingBalanced)
	balancedB := blendScore(1.0, searchindex.MatchExact, 9000, maxCreated, RankingBalanced)
	require.InDelta(t, 5.044, balancedA, 0.001)
	require.InDelta(t, 1.400, balancedB, 0.001)
	require.Greater(t, balancedA, balancedB)

	recentA := blendScore(5.0, searchindex.MatchExact, 1000, maxCreated, RankingRecentHeavy)
	recentB := blendScore(1.0, searchindex.MatchExact, 9000, maxCreated, RankingRecentHeavy)
	require.InDelta(t, 5.111, recentA, 0.001)
	require.InDelta(t, 2.000, recentB, 0.001)
	require.Greater(t, recentA, recentB)
}

func TestSortHits_DateNewestIgnoresScore(t *testing.T) {
	low, high := int64(1000), int64(9000)
	hits := []SearchHit{
		{Score: 99, CreatedAt: &low},
		{Score: 1, CreatedAt: &high},
	}
	sortHits(hits, RankingDateNewest)
	require.Equal(t, high, *hits[0].CreatedAt)
}

func TestSortHits_BalancedSortsByScoreDesc(t *testing.T) {
	hits := []SearchHit{
		{Score: 1},
		{Score: 5},
	}
	sortHits(hits, RankingBalanced)
	require.Equal(t, 5.0, hits[0].Score)
}

func TestSuggestionsFor_CapsAtThree(t *testing.T) {
	filters := SearchFilters{
		Agents:      []string{"codex"},
		CreatedFrom: int64Ptr(1),
		CreatedTo:   int64Ptr(2),
	}
	out := suggestionsFor("parser", filters)
	require.LessOrEqual(t, len(out), 3)
	require.NotEmpty(t, out)
}

func int64Ptr(v int64) *int64 { return &v }
