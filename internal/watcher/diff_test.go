package watcher

import (
	"strconv"
	"testing"

	"github.com/CosmoTheDev/repowatch/internal/feed"
	"github.com/stretchr/testify/assert"
)

// window returns entries with IDs from..to, newest first.
func window(from, to int) []feed.Entry {
	var out []feed.Entry
	for i := from; i >= to; i-- {
		out = append(out, feed.Entry{ID: strconv.Itoa(i), Kind: feed.KindOther, Payload: feed.OtherPayload{}})
	}
	return out
}

func ids(entries []feed.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func TestDiffSince(t *testing.T) {
	tests := []struct {
		name      string
		feed      []feed.Entry
		marker    string
		hasCursor bool
		gapCap    int
		wantNew   []string
		wantTo    string
		want      Outcome
	}{
		{name: "empty feed", feed: nil, hasCursor: true, marker: "3", wantNew: []string{}, want: OutcomeEmpty},
		{name: "bootstrap", feed: window(5, 1), wantNew: []string{}, wantTo: "5", want: OutcomeBootstrap},
		{name: "no-op", feed: window(5, 1), marker: "5", hasCursor: true, wantNew: []string{}, want: OutcomeUnchanged},
		{name: "normal advance", feed: window(5, 1), marker: "3", hasCursor: true,
			wantNew: []string{"5", "4"}, wantTo: "5", want: OutcomeAdvanced},
		{name: "cursor at tail", feed: window(5, 1), marker: "1", hasCursor: true,
			wantNew: []string{"5", "4", "3", "2"}, wantTo: "5", want: OutcomeAdvanced},
		{name: "gap capped", feed: window(40, 11), marker: "3", hasCursor: true, gapCap: 10,
			wantNew: ids(window(40, 31)), wantTo: "40", want: OutcomeGap},
		{name: "gap shorter than cap", feed: window(8, 6), marker: "2", hasCursor: true, gapCap: 10,
			wantNew: []string{"8", "7", "6"}, wantTo: "8", want: OutcomeGap},
		{name: "stale window", feed: window(5, 1), marker: "9", hasCursor: true, wantNew: []string{}, want: OutcomeStale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DiffSince(tt.feed, tt.marker, tt.hasCursor, tt.gapCap)
			assert.Equal(t, tt.want, got.Outcome)
			assert.Equal(t, tt.wantNew, ids(got.New))
			assert.Equal(t, tt.wantTo, got.AdvanceTo)
		})
	}
}

func TestDiffSinceDefaultGapCap(t *testing.T) {
	got := DiffSince(window(50, 21), "7", true, 0)
	assert.Equal(t, OutcomeGap, got.Outcome)
	assert.Len(t, got.New, DefaultGapCap)
}

func TestDiffSinceReplayIsIdempotent(t *testing.T) {
	f := window(5, 1)
	first := DiffSince(f, "3", true, 10)
	assert.Equal(t, []string{"5", "4"}, ids(first.New))

	// Same window, cursor not written (e.g. crash before Set): same result.
	again := DiffSince(f, "3", true, 10)
	assert.Equal(t, ids(first.New), ids(again.New))

	// Cursor written: nothing new.
	after := DiffSince(f, first.AdvanceTo, true, 10)
	assert.Empty(t, after.New)
	assert.Equal(t, OutcomeUnchanged, after.Outcome)
}

func TestDiffSinceRuns(t *testing.T) {
	runs := []feed.RunEntry{{ID: 300}, {ID: 200}, {ID: 100}}
	got := DiffSince(runs, "100", true, 10)
	assert.Len(t, got.New, 2)
	assert.Equal(t, "300", got.AdvanceTo)
}

func TestNewer(t *testing.T) {
	assert.True(t, Newer("10", "9"))
	assert.False(t, Newer("9", "10"))
	assert.False(t, Newer("5", "5"))
	assert.True(t, Newer("5", ""))
	assert.False(t, Newer("", ""))
	assert.True(t, Newer("abc", "def"), "opaque IDs only need to differ")
}
