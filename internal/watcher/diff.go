package watcher

import (
	"strconv"
)

// DefaultGapCap bounds the entries emitted when the cursor is no longer in
// the fetched window.
const DefaultGapCap = 10

// Identified is anything with a feed entry ID: feed.Entry and feed.RunEntry.
type Identified interface {
	EntryID() string
}

// Outcome classifies a diff.
type Outcome string

const (
	OutcomeEmpty     Outcome = "empty"     // feed had no entries
	OutcomeBootstrap Outcome = "bootstrap" // no cursor yet
	OutcomeUnchanged Outcome = "unchanged" // cursor is the newest entry
	OutcomeAdvanced  Outcome = "advanced"  // cursor found further down
	OutcomeGap       Outcome = "gap"       // cursor fell out of the window
	OutcomeStale     Outcome = "stale"     // window older than the cursor
)

// DiffResult is the outcome of comparing a fresh feed with a cursor.
// AdvanceTo is empty when the cursor must not move.
type DiffResult[T Identified] struct {
	New       []T
	AdvanceTo string
	Outcome   Outcome
}

// DiffSince returns the entries of items (newest first) that were not seen
// before marker. hasCursor is false when no marker was ever recorded.
//
// When the marker is not in the window at all, at most gapCap of the newest
// entries are returned and the rest are accepted as lost.
func DiffSince[T Identified](items []T, marker string, hasCursor bool, gapCap int) DiffResult[T] {
	if len(items) == 0 {
		return DiffResult[T]{Outcome: OutcomeEmpty}
	}
	head := items[0].EntryID()
	if !hasCursor {
		return DiffResult[T]{AdvanceTo: head, Outcome: OutcomeBootstrap}
	}
	if head == marker {
		return DiffResult[T]{Outcome: OutcomeUnchanged}
	}

	for k, it := range items {
		if it.EntryID() == marker {
			return DiffResult[T]{New: items[:k], AdvanceTo: head, Outcome: OutcomeAdvanced}
		}
	}

	if !Newer(head, marker) {
		return DiffResult[T]{Outcome: OutcomeStale}
	}
	if gapCap <= 0 {
		gapCap = DefaultGapCap
	}
	n := min(len(items), gapCap)
	return DiffResult[T]{New: items[:n], AdvanceTo: head, Outcome: OutcomeGap}
}

// Newer reports whether next may replace prev as a cursor. Numeric IDs are
// compared as numbers; anything else only has to differ.
func Newer(next, prev string) bool {
	if prev == "" {
		return next != ""
	}
	n, errN := strconv.ParseUint(next, 10, 64)
	p, errP := strconv.ParseUint(prev, 10, 64)
	if errN == nil && errP == nil {
		return n > p
	}
	return next != prev
}
