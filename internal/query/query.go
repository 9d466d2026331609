// Package query implements the search layer the TUI calls on every
// debounced keystroke: it rewrites wildcards per match mode, executes
// against internal/searchindex, blends a ranking score, and retries once
// with a broadened wildcard query when the initial hit count is sparse.
// Filter pickers (agent/workspace lists) are read straight from
// internal/store, since the index itself only knows the slugs it has
// seen, not their display names or conversation counts.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/cass/internal/searchindex"
	"github.com/fyrsmithlabs/cass/internal/store"
)

// MatchMode selects how free-text terms are rewritten before the index
// sees them. Persisted in tui_state.json across sessions.
type MatchMode string

const (
	MatchModeStandard MatchMode = "standard"
	MatchModePrefix   MatchMode = "prefix"
)

// RankingMode selects the alpha weight in the ranking blend, or a
// pure-date sort that ignores raw_score entirely.
type RankingMode string

const (
	RankingRecentHeavy      RankingMode = "recent_heavy"
	RankingBalanced         RankingMode = "balanced"
	RankingRelevanceHeavy   RankingMode = "relevance_heavy"
	RankingMatchQualityHeavy RankingMode = "match_quality_heavy"
	RankingDateNewest       RankingMode = "date_newest"
	RankingDateOldest       RankingMode = "date_oldest"
)

// alpha returns the recency weight for ranking modes that blend
// raw_score with recency; pure-date modes never call this.
func (r RankingMode) alpha() float64 {
	switch r {
	case RankingRecentHeavy:
		return 1.0
	case RankingRelevanceHeavy:
		return 0.1
	case RankingMatchQualityHeavy:
		return 0.2
	default: // RankingBalanced and anything unrecognized
		return 0.4
	}
}

func (r RankingMode) isPureDate() bool {
	return r == RankingDateNewest || r == RankingDateOldest
}

// SearchFilters restricts a search, mirroring searchindex.Filters at the
// public API boundary so callers outside this package never import
// searchindex directly.
type SearchFilters struct {
	Agents      []string
	Workspaces  []string
	CreatedFrom *int64
	CreatedTo   *int64
}

func (f SearchFilters) toIndex() searchindex.Filters {
	return searchindex.Filters{
		Agents:      f.Agents,
		Workspaces:  f.Workspaces,
		CreatedFrom: f.CreatedFrom,
		CreatedTo:   f.CreatedTo,
	}
}

// SearchHit is one ranked result, enriched with a blended score and the
// fields the TUI's result list and detail pane display.
type SearchHit struct {
	Agent      string
	Title      string
	Workspace  string
	SourcePath string
	Score      float64
	Content    string
	CreatedAt  *int64
	LineNumber int
	Snippet    string
	MatchType  searchindex.MatchType
}

// QuerySuggestion is a zero-hit-query remediation the UI can apply via a
// number-key shortcut.
type QuerySuggestion struct {
	Label            string
	SuggestedQuery   string
	SuggestedFilters *SearchFilters
}

// CacheStats tracks the reader cache's behavior across calls, surfaced in
// the TUI footer only when CASS_DEBUG_CACHE_METRICS is set. Not part of
// the stable contract.
type CacheStats struct {
	CacheHits      int64
	CacheMiss      int64
	CacheShortfall int64
	Reloads        int64
	ReloadMsTotal  int64
	TotalCost      int64
	TotalCap       int64
}

// SearchResult is what a Search call returns to the UI.
type SearchResult struct {
	Hits             []SearchHit
	CacheStats       CacheStats
	WildcardFallback bool
	Suggestions      []QuerySuggestion
}

// Engine is the stateful search layer: it owns the reader cache over a
// searchindex.Index generation and hydrates hits from a store.Store.
type Engine struct {
	idx   *searchindex.Index
	st    *store.Store
	cache *readerCache
}

// New builds a query Engine over an already-open read-only index and
// store handle. Both are owned by the caller; Engine never closes them.
func New(idx *searchindex.Index, st *store.Store) *Engine {
	return &Engine{idx: idx, st: st, cache: newReaderCache()}
}

// Search executes query with filters and pagination, applying the
// configured match/ranking mode, and performs a wildcard-broadened retry
// when the page is sparse (per §4.5.3). sparseThreshold and page controls
// come from the caller (the TUI uses sparseThreshold=3).
func (e *Engine) Search(ctx context.Context, rawQuery string, filters SearchFilters, mode MatchMode, ranking RankingMode, sparseThreshold, pageSize, offset int) (*SearchResult, error) {
	rewritten := rewriteQuery(rawQuery, mode)
	hits, total, err := e.runSearch(ctx, rewritten, filters, pageSize, offset)
	if err != nil {
		// Retry once after forcing a reader reload, per the SearchError
		// recovery policy; a second failure surfaces to the caller.
		if _, rerr := e.idx.Refresh(); rerr == nil {
			hits, total, err = e.runSearch(ctx, rewritten, filters, pageSize, offset)
		}
		if err != nil {
			return nil, fmt.Errorf("query: search failed: %w", err)
		}
	}

	if offset > 0 && offset >= total {
		e.cache.recordShortfall()
	}
	stats := e.cache.snapshotAndTrack(e.idx.Generation())

	result := &SearchResult{Hits: rankHits(hits, ranking), CacheStats: stats}

	if total >= sparseThreshold || offset > 0 || strings.TrimSpace(rawQuery) == "" {
		if total == 0 {
			result.Suggestions = suggestionsFor(rawQuery, filters)
		}
		return result, nil
	}

	fallbackQuery := wildcardBroaden(rawQuery)
	fbHits, fbTotal, ferr := e.runSearch(ctx, fallbackQuery, filters, pageSize, offset)
	if ferr == nil && fbTotal > total {
		for i := range fbHits {
			fbHits[i].MatchType = searchindex.MatchImplicitWildcard
		}
		fbRanked := rankHits(fbHits, ranking)
		return &SearchResult{Hits: fbRanked, CacheStats: stats, WildcardFallback: true}, nil
	}

	if total == 0 {
		result.Suggestions = suggestionsFor(rawQuery, filters)
	}
	return result, nil
}

// Agents returns the distinct agents seen by the relational store, for
// populating the TUI's agent filter picker.
func (e *Engine) Agents(ctx context.Context) ([]store.AgentSummary, error) {
	return e.st.ListAgents(ctx)
}

// Workspaces returns the distinct workspaces seen by the relational
// store, for populating the TUI's workspace filter picker.
func (e *Engine) Workspaces(ctx context.Context) ([]store.WorkspaceSummary, error) {
	return e.st.ListWorkspaces(ctx)
}

func (e *Engine) runSearch(ctx context.Context, q string, filters SearchFilters, pageSize, offset int) ([]searchindex.Hit, int, error) {
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	default:
	}
	return e.idx.Search(q, filters.toIndex(), pageSize, offset)
}

// rewriteQuery implements §4.5.2: standard mode passes the query through
// unchanged; prefix mode appends '*' to every whitespace-separated term
// that doesn't already contain one.
func rewriteQuery(q string, mode MatchMode) string {
	if mode != MatchModePrefix {
		return q
	}
	terms := strings.Fields(q)
	for i, t := range terms {
		if !strings.Contains(t, "*") {
			terms[i] = t + "*"
		}
	}
	return strings.Join(terms, " ")
}

// wildcardBroaden implements the fallback rewrite: every alphanumeric
// term with no '*' becomes "*term*"; terms that already carry a wildcard
// are left alone.
func wildcardBroaden(q string) string {
	terms := strings.Fields(q)
	for i, t := range terms {
		if !strings.Contains(t, "*") && isAlnumTerm(t) {
			terms[i] = "*" + t + "*"
		}
	}
	return strings.Join(terms, " ")
}

func isAlnumTerm(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9') && !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

func maxCreatedAt(hits []searchindex.Hit) int64 {
	var max int64
	for _, h := range hits {
		if h.Doc.CreatedAt > max {
			max = h.Doc.CreatedAt
		}
	}
	return max
}

// rankHits converts raw index hits into SearchHits, applying the ranking
// blend and sort order for the given mode.
func rankHits(hits []searchindex.Hit, mode RankingMode) []SearchHit {
	maxCreated := maxCreatedAt(hits)
	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		createdAt := h.Doc.CreatedAt
		var createdPtr *int64
		if createdAt != 0 {
			c := createdAt
			createdPtr = &c
		}
		out = append(out, SearchHit{
			Agent:      h.Doc.Agent,
			Title:      h.Doc.Title,
			Workspace:  h.Doc.Workspace,
			SourcePath: h.Doc.SourcePath,
			Score:      blendScore(h.RawScore, h.MatchType, createdAt, maxCreated, mode),
			Content:    h.Doc.Preview,
			CreatedAt:  createdPtr,
			Snippet:    h.Doc.Preview,
			MatchType:  h.MatchType,
		})
	}
	sortHits(out, mode)
	return out
}

// blendScore implements §4.5.4: final_score = raw*quality + alpha*recency
// for blended modes; pure-date modes ignore raw_score and are sorted
// separately by sortHits, so the score returned there is cosmetic (the
// raw recency fraction).
func blendScore(raw float64, mt searchindex.MatchType, createdAt, maxCreated int64, mode RankingMode) float64 {
	recency := 0.0
	if maxCreated > 0 {
		recency = float64(createdAt) / float64(maxCreated)
	}
	if mode.isPureDate() {
		return recency
	}
	return raw*mt.QualityFactor() + mode.alpha()*recency
}

func sortHits(hits []SearchHit, mode RankingMode) {
	sort.SliceStable(hits, func(i, j int) bool {
		switch mode {
		case RankingDateOldest:
			ci, cj := createdOf(hits[i]), createdOf(hits[j])
			if ci != cj {
				return ci < cj
			}
		case RankingDateNewest:
			ci, cj := createdOf(hits[i]), createdOf(hits[j])
			if ci != cj {
				return ci > cj
			}
		default:
			if hits[i].Score != hits[j].Score {
				return hits[i].Score > hits[j].Score
			}
		}
		// Ties break by created_at descending, per §4.5.4.
		return createdOf(hits[i]) > createdOf(hits[j])
	})
}

func createdOf(h SearchHit) int64 {
	if h.CreatedAt == nil {
		return 0
	}
	return *h.CreatedAt
}

// suggestionsFor builds up to three QuerySuggestions for a zero-hit
// query, regenerated fresh per call (§9 Open Question: not carried across
// pagination).
func suggestionsFor(rawQuery string, filters SearchFilters) []QuerySuggestion {
	var out []QuerySuggestion
	if filters.CreatedFrom != nil || filters.CreatedTo != nil {
		relaxed := filters
		relaxed.CreatedFrom, relaxed.CreatedTo = nil, nil
		out = append(out, QuerySuggestion{Label: "Remove time filter", SuggestedFilters: &relaxed})
	}
	if base := strings.TrimSpace(rawQuery); base != "" && !strings.Contains(base, "*") {
		out = append(out, QuerySuggestion{
			Label:          fmt.Sprintf("Try a wildcard search for %q", base),
			SuggestedQuery: "*" + base + "*",
		})
	}
	if len(filters.Agents) > 0 {
		relaxed := filters
		relaxed.Agents = nil
		out = append(out, QuerySuggestion{Label: "Search all agents", SuggestedFilters: &relaxed})
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}
