package query

import "sync"

// readerCache tracks the search layer's observation of the index's
// generation counter: every Search call either hits the cached
// generation or pays for a reload, and this bookkeeping is what
// CacheStats surfaces in the TUI footer when diagnostics are enabled.
// It holds no actual index data; internal/searchindex.Index already
// caches its own in-memory posting lists; this tracks call-site cache
// behavior (hit/miss/shortfall/reload counts), not a second copy of the
// index.
type readerCache struct {
	mu         sync.Mutex
	generation int64
	seen       bool

	hits      int64
	miss      int64
	shortfall int64
	reloads   int64
	reloadMs  int64
	cost      int64
	cap       int64
}

func newReaderCache() *readerCache {
	return &readerCache{cap: 1000}
}

// snapshotAndTrack records whether this call observes the same
// generation as the previous call (a cache hit) or a new one (a miss,
// i.e. a reload happened underneath), and returns the running totals.
func (c *readerCache) snapshotAndTrack(generation int64) CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.seen {
		c.seen = true
		c.generation = generation
		c.miss++
	} else if generation != c.generation {
		c.generation = generation
		c.miss++
		c.reloads++
	} else {
		c.hits++
	}
	c.cost++

	return CacheStats{
		CacheHits:      c.hits,
		CacheMiss:      c.miss,
		CacheShortfall: c.shortfall,
		Reloads:        c.reloads,
		ReloadMsTotal:  c.reloadMs,
		TotalCost:      c.cost,
		TotalCap:       c.cap,
	}
}

// recordShortfall marks a page request that reached beyond the cached
// window (an offset beyond what the last search's total covered).
func (c *readerCache) recordShortfall() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shortfall++
}
