package indexer

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cass/internal/connector"
)

// watchDebounce coalesces a burst of filesystem events (an agent writing
// several lines in quick succession) into a single rescan.
const watchDebounce = 500 * time.Millisecond

// Watch runs ScanAll once, then watches every connector's detected root
// paths for changes and debounces them into incremental rescans until ctx
// is cancelled. Detection is re-run on each fire so a root that didn't
// exist at startup (an agent installed mid-session) is picked up.
func (ix *Indexer) Watch(ctx context.Context) error {
	if _, err := ix.ScanAll(ctx, false); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	ix.addWatchRoots(watcher)

	var debounceTimer *time.Timer
	rescan := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				select {
				case rescan <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			ix.Logger.Warn("watch error", zap.Error(err))
		case <-rescan:
			if ix.Cancelled != nil && ix.Cancelled.Load() {
				return nil
			}
			if _, err := ix.ScanAll(ctx, false); err != nil {
				ix.Logger.Error("rescan failed", zap.Error(err))
			}
			ix.addWatchRoots(watcher)
		}
	}
}

// addWatchRoots registers every connector's detected root paths with the
// watcher; re-adding an already-watched path is a cheap no-op in
// fsnotify, so this is safe to call after every rescan to pick up newly
// detected agents.
func (ix *Indexer) addWatchRoots(watcher *fsnotify.Watcher) {
	for _, c := range ix.Connectors {
		det := c.Detect(connector.ScanContext{})
		for _, root := range det.RootPaths {
			_ = watcher.Add(root)
		}
	}
}
