package watcher

import (
	"errors"
	"fmt"
)

// FetchError means a feed or runs fetch failed. The target is skipped for the
// cycle and its cursor is left untouched.
type FetchError struct {
	Repo string
	Feed string // "activity" or "runs"
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s feed of %s: %v", e.Feed, e.Repo, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StoreError is a cursor store failure. Op is "read" or "write".
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("cursor %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ExtractionFault is a single malformed entry. The record is dropped and the
// rest of the batch continues.
type ExtractionFault struct {
	EntryID string
	Cause   any
}

func (e *ExtractionFault) Error() string {
	return fmt.Sprintf("extracting entry %s: %v", e.EntryID, e.Cause)
}

// RenderError means an artifact could not be produced; delivery falls back to
// a plain-text summary.
type RenderError struct {
	Kind string
	Repo string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("rendering %s for %s: %v", e.Kind, e.Repo, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// DeliveryError is a failure to deliver to one destination.
type DeliveryError struct {
	Destination string
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivering to %s: %v", e.Destination, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ErrStaleWindow is reported when the fetched window is older than the
// stored cursor. The cursor is kept.
var ErrStaleWindow = errors.New("feed window is older than the stored cursor")
