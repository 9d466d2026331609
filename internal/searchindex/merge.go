package searchindex

import (
	"os"
	"path/filepath"
	"time"
)

// mergeSegmentThreshold and mergeCooldown implement the advisory merge
// policy from the schema's segment lifecycle: a merge is only worth
// considering once enough small segments have piled up, and not more
// often than once per cooldown window even then.
const (
	mergeSegmentThreshold = 4
	mergeCooldown         = 5 * time.Minute
)

// MergeStatus reports the observability fields the spec names for the
// segment merge policy.
type MergeStatus struct {
	SegmentCount   int
	LastMergeMs    int64
	MsSinceLastMs  int64 // -1 if a merge has never run
	Threshold      int
	CooldownMs     int64
}

// MergeStatus returns the current merge observability snapshot.
func (idx *Index) MergeStatus() MergeStatus {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.mergeStatusLocked()
}

func (idx *Index) mergeStatusLocked() MergeStatus {
	since := int64(-1)
	if idx.lastMergeMs != 0 {
		since = nowMs() - idx.lastMergeMs
	}
	return MergeStatus{
		SegmentCount:  len(idx.segments),
		LastMergeMs:   idx.lastMergeMs,
		MsSinceLastMs: since,
		Threshold:     mergeSegmentThreshold,
		CooldownMs:    mergeCooldown.Milliseconds(),
	}
}

// nowMs is a var so tests can stub the clock without touching the real
// wall clock used elsewhere in the process.
var nowMs = func() int64 { return time.Now().UnixMilli() }

// shouldMergeLocked reports whether the merge policy recommends a merge
// right now: at least mergeSegmentThreshold segments, and at least
// mergeCooldown since the last merge (or no merge has ever run).
func (idx *Index) shouldMergeLocked() bool {
	if len(idx.segments) < mergeSegmentThreshold {
		return false
	}
	if idx.lastMergeMs == 0 {
		return true
	}
	return nowMs()-idx.lastMergeMs >= mergeCooldown.Milliseconds()
}

// triggerMergeLocked dispatches a background merge attempt to the index's
// own merge goroutine if the policy recommends one. Called with mu held
// (from Commit); the send is non-blocking so Commit never waits on the
// merge thread.
func (idx *Index) triggerMergeLocked() {
	if !idx.shouldMergeLocked() || idx.mergeCh == nil {
		return
	}
	select {
	case idx.mergeCh <- struct{}{}:
	default:
	}
}

// mergeLoop runs on the writer's background goroutine (started by Open),
// draining merge requests and executing them. It exits when mergeCh is
// closed by Close.
func (idx *Index) mergeLoop() {
	for range idx.mergeCh {
		_, _ = idx.optimizeIfIdle()
	}
}

// OptimizeIfIdle runs a merge if the policy currently recommends one,
// returning whether a merge actually ran. Safe to call directly; used by
// the background loop and exposed for tests/diagnostics that want the
// advisory (non-blocking-policy, but synchronous call) path rather than
// ForceMerge's unconditional one.
func (idx *Index) OptimizeIfIdle() (bool, error) {
	return idx.optimizeIfIdle()
}

func (idx *Index) optimizeIfIdle() (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.shouldMergeLocked() {
		return false, nil
	}
	if err := idx.mergeLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// ForceMerge merges all segments into one unconditionally, ignoring the
// threshold/cooldown policy. It blocks until the merge is written, for
// tests and diagnostics.
func (idx *Index) ForceMerge() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.mergeLocked()
}

// mergeLocked rewrites every live document (idx.docs, which already
// reflects all tombstones applied so far) into a single new segment file
// and replaces the segment list with just that one, then bumps the
// generation so readers observe the merge atomically. Must be called
// with mu held.
func (idx *Index) mergeLocked() error {
	docs := make([]Document, 0, len(idx.docs))
	for _, d := range idx.docs {
		docs = append(docs, *d)
	}

	segName := "seg-merged.jsonl"
	if err := writeSegment(filepath.Join(idx.dir, segName), docs); err != nil {
		return err
	}
	for _, old := range idx.segments {
		if old == segName {
			continue
		}
		_ = os.Remove(filepath.Join(idx.dir, old))
	}

	idx.segments = []string{segName}
	idx.generation++
	idx.lastMergeMs = nowMs()
	return idx.writeMeta()
}
