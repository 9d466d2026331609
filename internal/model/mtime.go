package model

import "os"

// FileModifiedSince reports whether path should be (re)processed given a
// since-ms checkpoint. It fails open: a missing checkpoint, or any error
// stat'ing the file, means "yes, process it", on the theory that a
// spurious reindex is cheaper than silently losing data.
func FileModifiedSince(path string, sinceMs *int64) bool {
	if sinceMs == nil {
		return true
	}
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return info.ModTime().UnixMilli() >= *sinceMs
}
