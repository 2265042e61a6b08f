package watcher

import (
	"testing"
	"time"

	"github.com/CosmoTheDev/repowatch/internal/feed"
	"github.com/CosmoTheDev/repowatch/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func push(id, ref string, shas ...string) feed.Entry {
	p := feed.PushPayload{Ref: ref, Head: "head" + id}
	for _, s := range shas {
		p.Commits = append(p.Commits, feed.PushCommit{SHA: s, Message: "msg " + s})
	}
	return feed.Entry{ID: id, Kind: feed.KindPush, Actor: feed.Actor{Login: "alice"}, CreatedAt: ts, Payload: p}
}

func TestExtractCommits(t *testing.T) {
	entries := []feed.Entry{
		push("5", "refs/heads/main", "c5a", "c5b"),
		push("4", "refs/heads/feature/main-fix", "c4"),
		push("3", "refs/heads/dev", "c3"),
		push("2", "refs/heads/main"), // force push: head only
		push("1", "refs/heads/main", "c5a"),
		{ID: "0", Kind: feed.KindIssues, Payload: feed.IssuePayload{}},
	}

	got, faults := ExtractCommits(entries, "main")
	require.Empty(t, faults)
	require.Len(t, got, 4)
	assert.Equal(t, "c5a", got[0].SHA)
	assert.Equal(t, "c5b", got[1].SHA)
	assert.Equal(t, "alice", got[0].Author, "author falls back to the actor")
	assert.Equal(t, ts, got[0].Timestamp, "timestamp falls back to the entry")

	assert.Equal(t, "head2", got[2].SHA)
	assert.Equal(t, "Push to main", got[2].Message)
	assert.Equal(t, "c5a", got[3].SHA, "each push reports its own commits")
}

func TestExtractCommitsSameSHAInTwoPushes(t *testing.T) {
	entries := []feed.Entry{
		push("2", "refs/heads/main", "aaa"),
		push("1", "refs/heads/main", "aaa"),
	}
	got, faults := ExtractCommits(entries, "main")
	require.Empty(t, faults)
	require.Len(t, got, 2)
	assert.Equal(t, "aaa", got[0].SHA)
	assert.Equal(t, "aaa", got[1].SHA)
}

func TestExtractCommitsBranchSuffix(t *testing.T) {
	entries := []feed.Entry{push("1", "refs/heads/release/v2", "c1")}
	got, _ := ExtractCommits(entries, "v2")
	assert.Len(t, got, 1, "branch matches by ref suffix")

	got, _ = ExtractCommits(entries, "main")
	assert.Empty(t, got)
}

func TestExtractIssuesDedupKeepsNewest(t *testing.T) {
	entries := []feed.Entry{
		{ID: "3", Kind: feed.KindIssues, Actor: feed.Actor{Login: "bob"}, CreatedAt: ts,
			Payload: feed.IssuePayload{Action: "closed", Issue: feed.Item{Number: 7, Title: "Crash", State: "closed"}}},
		{ID: "2", Kind: feed.KindIssues,
			Payload: feed.IssuePayload{Action: "opened", Issue: feed.Item{Number: 7, Title: "Crash", State: "open"}}},
		{ID: "1", Kind: feed.KindIssues,
			Payload: feed.IssuePayload{Action: "opened", Issue: feed.Item{Number: 8, Title: "Typo", Author: "carol"}}},
	}
	got, faults := ExtractIssues(entries)
	require.Empty(t, faults)
	require.Len(t, got, 2)
	assert.Equal(t, 7, got[0].Number)
	assert.Equal(t, "closed", got[0].Action)
	assert.Equal(t, "bob", got[0].Author)
	assert.Equal(t, "carol", got[1].Author)
	assert.Equal(t, "open", got[1].State, "missing state defaults to open")
}

func TestExtractSkipsEntriesWithoutItem(t *testing.T) {
	issues, faults := ExtractIssues([]feed.Entry{
		{ID: "2", Kind: feed.KindIssues, Payload: feed.IssuePayload{Action: "opened"}},
		{ID: "1", Kind: feed.KindIssues, Payload: feed.IssuePayload{Action: "opened", Issue: feed.Item{Number: 3}}},
	})
	require.Empty(t, faults)
	require.Len(t, issues, 1)
	assert.Equal(t, 3, issues[0].Number)

	pulls, faults := ExtractPulls([]feed.Entry{
		{ID: "1", Kind: feed.KindPullRequest, Payload: feed.PullRequestPayload{Action: "closed", Merged: true}},
	})
	require.Empty(t, faults)
	assert.Empty(t, pulls)
}

func TestExtractPullsMerged(t *testing.T) {
	entries := []feed.Entry{
		{ID: "2", Kind: feed.KindPullRequest,
			Payload: feed.PullRequestPayload{Action: "closed", Merged: true, Pull: feed.Item{Number: 4, State: "closed"}}},
		{ID: "1", Kind: feed.KindPullRequest,
			Payload: feed.PullRequestPayload{Action: "opened", Pull: feed.Item{Number: 5, State: "open"}}},
	}
	got, _ := ExtractPulls(entries)
	require.Len(t, got, 2)
	assert.Equal(t, "merged", got[0].State)
	assert.Equal(t, "merged", got[0].Action)
	assert.True(t, got[0].PullRequest)
	assert.Equal(t, "open", got[1].State)
}

func TestExtractComments(t *testing.T) {
	entries := []feed.Entry{
		{ID: "4", Kind: feed.KindReviewComment,
			Payload: feed.CommentPayload{CommentID: 11, Body: "nit", Target: feed.Item{Number: 4}}},
		{ID: "3", Kind: feed.KindIssueComment, Actor: feed.Actor{Login: "dave"},
			Payload: feed.CommentPayload{CommentID: 10, Body: "+1", Target: feed.Item{Number: 7, Title: "Crash"}}},
		{ID: "2", Kind: feed.KindIssueComment,
			Payload: feed.CommentPayload{CommentID: 10, Body: "+1 (edited)", Target: feed.Item{Number: 7}}},
		{ID: "1", Kind: feed.KindPush, Payload: feed.PushPayload{}},
	}
	got, faults := ExtractComments(entries)
	require.Empty(t, faults)
	require.Len(t, got, 2)
	assert.Equal(t, models.SourcePullRequest, got[0].Source)
	assert.Equal(t, models.SourceIssue, got[1].Source)
	assert.Equal(t, "+1", got[1].Body, "later duplicates are dropped, not merged")
	assert.Equal(t, "dave", got[1].Author)

	assert.Len(t, FilterComments(got, true, false), 1)
	assert.Len(t, FilterComments(got, false, true), 1)
	assert.Len(t, FilterComments(got, true, true), 2)
	assert.Empty(t, FilterComments(got, false, false))
}

func TestExtractDropsMalformedEntry(t *testing.T) {
	entries := []feed.Entry{
		{ID: "3", Kind: feed.KindIssues, Payload: feed.OtherPayload{}}, // wrong payload type
		{ID: "2", Kind: feed.KindIssues, Payload: feed.IssuePayload{Issue: feed.Item{Number: 1}}},
	}
	got, faults := ExtractIssues(entries)
	require.Len(t, faults, 1)
	var f *ExtractionFault
	assert.ErrorAs(t, faults[0], &f)
	assert.Equal(t, "3", f.EntryID)
	assert.Len(t, got, 1)
}

func TestExtractRunsDedup(t *testing.T) {
	runs := []feed.RunEntry{
		{ID: 3, Name: "CI", Status: "completed", Conclusion: "success", CreatedAt: ts},
		{ID: 3, Name: "CI", Status: "in_progress"},
		{ID: 2, Name: "Lint"},
	}
	got := ExtractRuns(runs)
	require.Len(t, got, 2)
	assert.Equal(t, "success", got[0].Conclusion)
	assert.Equal(t, ts, got[0].UpdatedAt)
	assert.False(t, got[1].CreatedAt.IsZero(), "missing timestamps fall back to now")
}
