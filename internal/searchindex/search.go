package searchindex

import (
	"sort"
	"strings"
)

// MatchType classifies how a query term matched a document, used by the
// query layer to weight hits before blending in recency.
type MatchType int

const (
	MatchExact MatchType = iota
	MatchPrefix
	MatchSuffix
	MatchSubstring
	MatchImplicitWildcard
)

// QualityFactor is the per-variant multiplier the ranking formula applies
// to a hit's raw score, per the documented schema.
func (m MatchType) QualityFactor() float64 {
	switch m {
	case MatchExact:
		return 1.0
	case MatchPrefix:
		return 0.9
	case MatchSuffix:
		return 0.8
	case MatchSubstring:
		return 0.7
	case MatchImplicitWildcard:
		return 0.6
	default:
		return 0.6
	}
}

func (m MatchType) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchPrefix:
		return "prefix"
	case MatchSuffix:
		return "suffix"
	case MatchSubstring:
		return "substring"
	case MatchImplicitWildcard:
		return "implicit_wildcard"
	default:
		return "unknown"
	}
}

// Filters restricts a search to a subset of documents before term
// matching: agents/workspaces are disjunctions within their own set,
// conjoined with each other and with the created_at range.
type Filters struct {
	Agents      []string
	Workspaces  []string
	CreatedFrom *int64
	CreatedTo   *int64
}

// Hit is one scored document returned from Search, before the query
// layer's ranking blend (raw_score * quality_factor + alpha*recency).
type Hit struct {
	Doc       Document
	MatchType MatchType
	RawScore  float64
}

// termPattern classifies a single whitespace-separated query term by the
// position of its '*' wildcards.
type termPattern struct {
	kind MatchType
	core string // the term with wildcard markers stripped
}

func classifyTerm(term string) termPattern {
	hasPrefix := strings.HasPrefix(term, "*")
	hasSuffix := strings.HasSuffix(term, "*")
	core := strings.Trim(term, "*")
	switch {
	case hasPrefix && hasSuffix:
		return termPattern{kind: MatchSubstring, core: core}
	case hasSuffix:
		return termPattern{kind: MatchPrefix, core: core}
	case hasPrefix:
		return termPattern{kind: MatchSuffix, core: core}
	default:
		return termPattern{kind: MatchExact, core: core}
	}
}

// Search runs query against the index, applying filters, and returns the
// page [offset, offset+limit) of matches plus the total match count
// (pre-pagination), so callers can evaluate the sparse_threshold check
// without a second round trip.
func (idx *Index) Search(query string, filters Filters, limit, offset int) ([]Hit, int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	universe := idx.filterUniverseLocked(filters)

	terms := strings.Fields(query)
	var ids map[string]struct{}
	termMatchType := map[string]MatchType{} // per doc id, weakest matched type across terms
	termScore := map[string]float64{}

	if len(terms) == 0 {
		ids = universe
		for id := range ids {
			termMatchType[id] = MatchExact
			termScore[id] = 0
		}
	} else {
		for i, raw := range terms {
			pat := classifyTerm(raw)
			if pat.core == "" {
				continue
			}
			titleHits, contentHits := idx.matchTermLocked(pat)

			termIDs := map[string]struct{}{}
			for id := range titleHits {
				if _, ok := universe[id]; !ok {
					continue
				}
				termIDs[id] = struct{}{}
				bumpScore(termScore, id, 3.0)
				weaken(termMatchType, id, pat.kind)
			}
			for id := range contentHits {
				if _, ok := universe[id]; !ok {
					continue
				}
				termIDs[id] = struct{}{}
				bumpScore(termScore, id, 1.5)
				weaken(termMatchType, id, pat.kind)
			}

			if i == 0 {
				ids = termIDs
			} else {
				ids = intersect(ids, termIDs)
			}
			if len(ids) == 0 {
				break
			}
		}
		if ids == nil {
			ids = map[string]struct{}{}
		}
	}

	hits := make([]Hit, 0, len(ids))
	for id := range ids {
		doc, ok := idx.docs[id]
		if !ok {
			continue
		}
		score := termScore[id]
		if score > 10.0 {
			score = 10.0
		}
		hits = append(hits, Hit{Doc: *doc, MatchType: termMatchType[id], RawScore: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].RawScore != hits[j].RawScore {
			return hits[i].RawScore > hits[j].RawScore
		}
		if hits[i].Doc.CreatedAt != hits[j].Doc.CreatedAt {
			return hits[i].Doc.CreatedAt > hits[j].Doc.CreatedAt
		}
		return hits[i].Doc.ID < hits[j].Doc.ID
	})

	total := len(hits)
	if offset >= len(hits) {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(hits) {
		end = len(hits)
	}
	return hits[offset:end], total, nil
}

// matchTermLocked returns the set of document IDs whose title/content
// token stream matches pat, consulting the prefix fields for Prefix
// patterns and falling back to a token scan for Suffix/Substring
// patterns (no reverse index is maintained for those, matching the
// schema: only *_prefix fields exist).
func (idx *Index) matchTermLocked(pat termPattern) (title, content map[string]struct{}) {
	term := strings.ToLower(pat.core)
	switch pat.kind {
	case MatchExact:
		return copySet(idx.titleTokens[term]), copySet(idx.contentTokens[term])
	case MatchPrefix:
		return copySet(idx.titlePrefix[term]), copySet(idx.contentPrefix[term])
	case MatchSuffix:
		return idx.scanTokens(idx.titleTokens, func(tok string) bool { return strings.HasSuffix(tok, term) }),
			idx.scanTokens(idx.contentTokens, func(tok string) bool { return strings.HasSuffix(tok, term) })
	case MatchSubstring:
		return idx.scanTokens(idx.titleTokens, func(tok string) bool { return strings.Contains(tok, term) }),
			idx.scanTokens(idx.contentTokens, func(tok string) bool { return strings.Contains(tok, term) })
	default:
		return nil, nil
	}
}

func (idx *Index) scanTokens(field invertedMap, pred func(string) bool) map[string]struct{} {
	out := map[string]struct{}{}
	for tok, ids := range field {
		if !pred(tok) {
			continue
		}
		for id := range ids {
			out[id] = struct{}{}
		}
	}
	return out
}

// filterUniverseLocked applies agent/workspace/date filters, returning
// the set of document IDs eligible before term matching. A nil/empty
// filter component is treated as "no restriction" for that component.
func (idx *Index) filterUniverseLocked(f Filters) map[string]struct{} {
	universe := map[string]struct{}{}
	for id := range idx.docs {
		universe[id] = struct{}{}
	}

	if len(f.Agents) > 0 {
		allowed := map[string]struct{}{}
		for _, a := range f.Agents {
			for id := range idx.agentIdx[a] {
				allowed[id] = struct{}{}
			}
		}
		universe = intersect(universe, allowed)
	}
	if len(f.Workspaces) > 0 {
		allowed := map[string]struct{}{}
		for _, w := range f.Workspaces {
			for id := range idx.workspaceIdx[w] {
				allowed[id] = struct{}{}
			}
		}
		universe = intersect(universe, allowed)
	}
	if f.CreatedFrom != nil || f.CreatedTo != nil {
		for id := range universe {
			doc, ok := idx.docs[id]
			if !ok {
				delete(universe, id)
				continue
			}
			if f.CreatedFrom != nil && doc.CreatedAt < *f.CreatedFrom {
				delete(universe, id)
				continue
			}
			if f.CreatedTo != nil && doc.CreatedAt > *f.CreatedTo {
				delete(universe, id)
			}
		}
	}
	return universe
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	if len(a) > len(b) {
		a, b = b, a
	}
	out := map[string]struct{}{}
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func copySet(src map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(src))
	for id := range src {
		out[id] = struct{}{}
	}
	return out
}

func bumpScore(scores map[string]float64, id string, by float64) {
	scores[id] += by
}

// weaken records the lowest-quality match type seen for id across terms:
// a hit's overall confidence is only as good as its weakest-matching term.
func weaken(types map[string]MatchType, id string, kind MatchType) {
	existing, ok := types[id]
	if !ok || kind.QualityFactor() < existing.QualityFactor() {
		types[id] = kind
	}
}
