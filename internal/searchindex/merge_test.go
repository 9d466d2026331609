package searchindex

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// withFakeClock stubs nowMs for the duration of a test and restores it on
// cleanup, so merge-cooldown assertions don't depend on wall-clock timing.
func withFakeClock(t *testing.T, start int64) *int64 {
	t.Helper()
	cur := start
	prev := nowMs
	nowMs = func() int64 { return cur }
	t.Cleanup(func() { nowMs = prev })
	return &cur
}

func TestMergePolicy_ThresholdAndCooldown(t *testing.T) {
	clock := withFakeClock(t, 1_000_000)

	idx := newTestIndex(t)
	// Detach the merge loop Open started: Commit would otherwise dispatch a
	// background merge as soon as the policy allows one, racing the
	// explicit OptimizeIfIdle calls below.
	idx.mu.Lock()
	idx.mergeCh = nil
	idx.mu.Unlock()
	for i := 0; i < mergeSegmentThreshold; i++ {
		seedDocs(t, idx, Document{ID: fmt.Sprintf("doc-%d", i), Title: "x", Content: "x"})
	}
	require.Equal(t, mergeSegmentThreshold, len(idx.segments))

	ran, err := idx.OptimizeIfIdle()
	require.NoError(t, err)
	require.True(t, ran, "merge should run once the segment threshold is reached")
	require.Equal(t, 1, len(idx.segments), "merge should collapse to a single segment")

	ran, err = idx.OptimizeIfIdle()
	require.NoError(t, err)
	require.False(t, ran, "a second call before the cooldown elapses must be a no-op")

	*clock += mergeCooldown.Milliseconds() - 1
	ran, err = idx.OptimizeIfIdle()
	require.NoError(t, err)
	require.False(t, ran, "still within the cooldown window")

	*clock += 2
	seedDocs(t, idx, Document{ID: "extra-1", Title: "x", Content: "x"})
	seedDocs(t, idx, Document{ID: "extra-2", Title: "x", Content: "x"})
	seedDocs(t, idx, Document{ID: "extra-3", Title: "x", Content: "x"})
	require.GreaterOrEqual(t, len(idx.segments), mergeSegmentThreshold)

	ran, err = idx.OptimizeIfIdle()
	require.NoError(t, err)
	require.True(t, ran, "cooldown elapsed and segment count is back over threshold")
}

func TestMergeStatus_NeverMerged(t *testing.T) {
	idx := newTestIndex(t)
	status := idx.MergeStatus()
	require.Equal(t, int64(-1), status.MsSinceLastMs)
	require.Equal(t, mergeSegmentThreshold, status.Threshold)
}

func TestForceMerge_IgnoresPolicy(t *testing.T) {
	idx := newTestIndex(t)
	seedDocs(t, idx, Document{ID: "only-one", Title: "x", Content: "x"})
	require.Equal(t, 1, len(idx.segments))

	require.NoError(t, idx.ForceMerge())
	require.Equal(t, 1, len(idx.segments))
	require.NotZero(t, idx.MergeStatus().LastMergeMs)
}
