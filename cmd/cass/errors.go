package main

import (
	"errors"

	"github.com/fyrsmithlabs/cass/internal/store"
)

// errMissingIndex is returned by tuiCmd when the store's schema hash
// doesn't match, per spec §6: the UI surfaces "index not present" and
// blocks search until a scan runs.
var errMissingIndex = errors.New("cass: index not present; run `cass index` first")

// errUsage wraps a flag/argument validation failure from a subcommand's
// RunE, distinct from an operational failure.
type errUsage struct{ cause error }

func (e *errUsage) Error() string { return e.cause.Error() }
func (e *errUsage) Unwrap() error { return e.cause }

// errSearchFailed wraps a query-layer failure for the CLI's --once mode.
type errSearchFailed struct{ cause error }

func (e *errSearchFailed) Error() string { return "cass: search failed: " + e.cause.Error() }
func (e *errSearchFailed) Unwrap() error { return e.cause }

func isUsageError(err error) bool {
	var ue *errUsage
	return errors.As(err, &ue)
}

func isMissingIndexError(err error) bool {
	return errors.Is(err, errMissingIndex) || errors.Is(err, store.ErrSchemaMismatch)
}

func isSearchError(err error) bool {
	var se *errSearchFailed
	return errors.As(err, &se)
}
