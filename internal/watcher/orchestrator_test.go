package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/CosmoTheDev/repowatch/internal/cursor"
	"github.com/CosmoTheDev/repowatch/internal/feed"
	"github.com/CosmoTheDev/repowatch/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu       sync.Mutex
	feeds    map[string][]feed.Entry
	runs     map[string][]feed.RunEntry
	failFeed map[string]error
	failFile error
}

func (f *fakeFetcher) Provider() string { return "github" }

func (f *fakeFetcher) FetchFeed(_ context.Context, repo string, _ int) ([]feed.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFeed[repo]; err != nil {
		return nil, err
	}
	return f.feeds[repo], nil
}

func (f *fakeFetcher) FetchCommitFiles(_ context.Context, _, sha string) ([]models.FileChange, error) {
	if f.failFile != nil {
		return nil, f.failFile
	}
	return []models.FileChange{{Filename: sha + ".go", Status: "modified", Additions: 1}}, nil
}

func (f *fakeFetcher) FetchRuns(_ context.Context, repo string, _ int) ([]feed.RunEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[repo], nil
}

func (f *fakeFetcher) DefaultBranch(context.Context, string) (string, error) { return "main", nil }

func (f *fakeFetcher) setFeed(repo string, entries []feed.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeds[repo] = entries
}

type fetchers struct{ f feed.Fetcher }

func (s fetchers) For(string) (feed.Fetcher, error) { return s.f, nil }

type staticTargets []models.WatchTarget

func (s staticTargets) Active(context.Context) ([]models.WatchTarget, error) { return s, nil }

type fakeRenderer struct{ fail bool }

func (r fakeRenderer) Render(b models.Batch) (*models.Artifact, error) {
	if r.fail {
		return nil, errors.New("template broke")
	}
	return &models.Artifact{Kind: b.Kind, Repo: b.Repo, Title: string(b.Kind)}, nil
}

func (fakeRenderer) Fallback(b models.Batch) string { return "text:" + string(b.Kind) }

type delivery struct {
	Dest string
	Kind models.ContentKind
	Text string
}

type fakeSender struct {
	mu   sync.Mutex
	got  []delivery
	fail map[string]bool
}

func (s *fakeSender) Deliver(_ context.Context, dest string, a *models.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[dest] {
		return errors.New("channel down")
	}
	s.got = append(s.got, delivery{Dest: dest, Kind: a.Kind})
	return nil
}

func (s *fakeSender) DeliverText(_ context.Context, dest, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[dest] {
		return errors.New("channel down")
	}
	s.got = append(s.got, delivery{Dest: dest, Text: text})
	return nil
}

// failingStore wraps a store and fails every Set.
type failingStore struct{ cursor.Store }

func (failingStore) Set(context.Context, string, string) error { return errors.New("disk full") }

func issue(id string, n int) feed.Entry {
	return feed.Entry{ID: id, Kind: feed.KindIssues, Actor: feed.Actor{Login: "bob"},
		Payload: feed.IssuePayload{Action: "opened", Issue: feed.Item{Number: n, Title: "issue"}}}
}

type harness struct {
	fetcher *fakeFetcher
	cursors cursor.Store
	sender  *fakeSender
	orch    *Orchestrator
	reports []CycleReport
}

func newHarness(t *testing.T, targets []models.WatchTarget, store cursor.Store, r Renderer) *harness {
	t.Helper()
	h := &harness{
		fetcher: &fakeFetcher{feeds: map[string][]feed.Entry{}, runs: map[string][]feed.RunEntry{}, failFeed: map[string]error{}},
		cursors: store,
		sender:  &fakeSender{fail: map[string]bool{}},
	}
	if h.cursors == nil {
		h.cursors = cursor.NewMemoryStore()
	}
	if r == nil {
		r = fakeRenderer{}
	}
	d := NewDispatcher(h.cursors, r, h.sender)
	h.orch = NewOrchestrator(staticTargets(targets), fetchers{h.fetcher}, h.cursors, d, Options{
		Workers: 2,
		OnCycle: func(rep CycleReport) { h.reports = append(h.reports, rep) },
	})
	return h
}

func target(repo string, kinds ...models.ContentKind) models.WatchTarget {
	return models.WatchTarget{Repo: repo, Branch: "main", Kinds: kinds, Destinations: []string{"slack"}, Enabled: true}
}

func TestCycleBootstrapThenAdvance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []models.WatchTarget{target("o/r", models.KindIssues)}, nil, nil)
	h.fetcher.setFeed("o/r", []feed.Entry{issue("3", 3), issue("2", 2), issue("1", 1)})

	rep := h.orch.RunCycle(ctx)
	assert.Equal(t, 1, rep.Targets)
	assert.Zero(t, rep.NewEntries)
	assert.Empty(t, h.sender.got, "bootstrap never notifies")
	m, ok, _ := h.cursors.Get(ctx, "o/r")
	require.True(t, ok)
	assert.Equal(t, "3", m)

	// no-op cycle
	h.orch.RunCycle(ctx)
	assert.Empty(t, h.sender.got)

	h.fetcher.setFeed("o/r", []feed.Entry{issue("5", 5), issue("4", 4), issue("3", 3), issue("2", 2)})
	rep = h.orch.RunCycle(ctx)
	assert.Equal(t, 2, rep.NewEntries)
	assert.Equal(t, 1, rep.Batches)
	require.Len(t, h.sender.got, 1)
	assert.Equal(t, models.KindIssues, h.sender.got[0].Kind)
	m, _, _ = h.cursors.Get(ctx, "o/r")
	assert.Equal(t, "5", m)

	// replaying the same window delivers nothing more
	h.orch.RunCycle(ctx)
	assert.Len(t, h.sender.got, 1)
	assert.Len(t, h.reports, 4)
	assert.NotEmpty(t, h.reports[0].ID)
}

func TestCycleFailureIsolation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []models.WatchTarget{
		target("o/broken", models.KindIssues),
		target("o/ok", models.KindIssues),
	}, nil, nil)
	require.NoError(t, h.cursors.Set(ctx, "o/broken", "1"))
	require.NoError(t, h.cursors.Set(ctx, "o/ok", "1"))
	h.fetcher.failFeed["o/broken"] = errors.New("502 bad gateway")
	h.fetcher.setFeed("o/ok", []feed.Entry{issue("2", 9), issue("1", 8)})

	rep := h.orch.RunCycle(ctx)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "o/broken", rep.Failures[0].Repo)
	var fe *FetchError
	assert.ErrorAs(t, rep.Failures[0].Err, &fe)

	assert.Len(t, h.sender.got, 1)
	m, _, _ := h.cursors.Get(ctx, "o/broken")
	assert.Equal(t, "1", m, "fetch failure leaves the cursor untouched")
}

func TestCycleSkipsInactiveTargets(t *testing.T) {
	disabled := target("o/off", models.KindIssues)
	disabled.Enabled = false
	nodest := target("o/nodest", models.KindIssues)
	nodest.Destinations = nil

	h := newHarness(t, []models.WatchTarget{disabled, nodest}, nil, nil)
	rep := h.orch.RunCycle(context.Background())
	assert.Zero(t, rep.Targets)
}

func TestCycleCursorWriteFailureSkipsDispatch(t *testing.T) {
	ctx := context.Background()
	mem := cursor.NewMemoryStore()
	require.NoError(t, mem.Set(ctx, "o/r", "1"))
	h := newHarness(t, []models.WatchTarget{target("o/r", models.KindIssues)}, failingStore{mem}, nil)
	h.fetcher.setFeed("o/r", []feed.Entry{issue("2", 2), issue("1", 1)})

	rep := h.orch.RunCycle(ctx)
	require.Len(t, rep.Failures, 1)
	var se *StoreError
	require.ErrorAs(t, rep.Failures[0].Err, &se)
	assert.Equal(t, "write", se.Op)
	assert.Empty(t, h.sender.got)

	m, _, _ := mem.Get(ctx, "o/r")
	assert.Equal(t, "1", m)
}

func TestCycleCommitsEnrichedAndRendered(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []models.WatchTarget{target("o/r", models.KindCommits)}, nil, nil)
	require.NoError(t, h.cursors.Set(ctx, "o/r", "1"))
	h.fetcher.setFeed("o/r", []feed.Entry{
		push("3", "refs/heads/main", "aaa"),
		push("2", "refs/heads/dev", "bbb"),
		push("1", "refs/heads/main", "ccc"),
	})

	var got models.Batch
	d := NewDispatcher(h.cursors, captureRenderer{&got}, h.sender)
	h.orch.dispatcher = d
	h.orch.RunCycle(ctx)

	require.Len(t, got.Commits, 1)
	assert.Equal(t, "aaa", got.Commits[0].SHA)
	require.Len(t, got.Commits[0].FileChanges, 1)
	assert.Equal(t, "aaa.go", got.Commits[0].FileChanges[0].Filename)
}

func TestCycleEnrichmentFailureKeepsRecord(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []models.WatchTarget{target("o/r", models.KindCommits)}, nil, nil)
	require.NoError(t, h.cursors.Set(ctx, "o/r", "1"))
	h.fetcher.failFile = errors.New("timeout")
	h.fetcher.setFeed("o/r", []feed.Entry{push("2", "refs/heads/main", "aaa"), push("1", "refs/heads/main", "zzz")})

	h.orch.RunCycle(ctx)
	require.Len(t, h.sender.got, 1)
	assert.Equal(t, models.KindCommits, h.sender.got[0].Kind)
}

type captureRenderer struct{ b *models.Batch }

func (c captureRenderer) Render(b models.Batch) (*models.Artifact, error) {
	*c.b = b
	return &models.Artifact{Kind: b.Kind}, nil
}

func (captureRenderer) Fallback(models.Batch) string { return "" }

func TestCycleCommentsFollowEnabledKinds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []models.WatchTarget{target("o/r", models.KindPulls)}, nil, nil)
	require.NoError(t, h.cursors.Set(ctx, "o/r", "1"))
	h.fetcher.setFeed("o/r", []feed.Entry{
		{ID: "3", Kind: feed.KindIssueComment, Payload: feed.CommentPayload{CommentID: 1, Target: feed.Item{Number: 1}}},
		{ID: "2", Kind: feed.KindReviewComment, Payload: feed.CommentPayload{CommentID: 2, Target: feed.Item{Number: 2}}},
		{ID: "1", Kind: feed.KindOther, Payload: feed.OtherPayload{}},
	})

	var got models.Batch
	h.orch.dispatcher = NewDispatcher(h.cursors, captureRenderer{&got}, h.sender)
	h.orch.RunCycle(ctx)
	assert.Equal(t, models.KindComments, got.Kind)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, models.SourcePullRequest, got.Comments[0].Source)
}

func TestCycleRunsUseSeparateCursor(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []models.WatchTarget{target("o/r", models.KindActions)}, nil, nil)
	h.fetcher.runs["o/r"] = []feed.RunEntry{{ID: 20, Name: "CI"}, {ID: 10, Name: "CI"}}

	h.orch.RunCycle(ctx)
	m, ok, _ := h.cursors.Get(ctx, "o/r:actions")
	require.True(t, ok)
	assert.Equal(t, "20", m)
	_, ok, _ = h.cursors.Get(ctx, "o/r")
	assert.False(t, ok, "activity feed is not polled for actions-only targets")

	h.fetcher.runs["o/r"] = []feed.RunEntry{{ID: 30, Name: "CI"}, {ID: 20, Name: "CI"}}
	rep := h.orch.RunCycle(ctx)
	assert.Equal(t, 1, rep.NewEntries)
	require.Len(t, h.sender.got, 1)
	assert.Equal(t, models.KindActions, h.sender.got[0].Kind)
}

func TestDispatchRenderFallbackAndDestinationIsolation(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{fail: map[string]bool{"email": true}}
	d := NewDispatcher(cursor.NewMemoryStore(), fakeRenderer{fail: true}, sender)

	res := d.Dispatch(ctx, []string{"email", "slack", "telegram:42"}, []models.Batch{
		{Kind: models.KindIssues, Repo: "o/r", Issues: []models.IssueRecord{{Number: 1}}},
		{Kind: models.KindCommits, Repo: "o/r"}, // empty, skipped
	})
	assert.Equal(t, 1, res.Batches)
	assert.Equal(t, 2, res.Delivered)
	require.Len(t, res.Errors, 1)
	var de *DeliveryError
	require.ErrorAs(t, res.Errors[0], &de)
	assert.Equal(t, "email", de.Destination)

	require.Len(t, sender.got, 2)
	assert.Equal(t, "text:issues", sender.got[0].Text)
	assert.Equal(t, "telegram:42", sender.got[1].Dest)
}

func TestAdvanceRefusesOlderMarker(t *testing.T) {
	ctx := context.Background()
	store := cursor.NewMemoryStore()
	require.NoError(t, store.Set(ctx, "k", "10"))
	d := NewDispatcher(store, fakeRenderer{}, &fakeSender{})

	err := d.Advance(ctx, "k", "10", true, "9")
	require.Error(t, err)
	assert.ErrorIs(t, err, cursor.ErrNotNewer)
	m, _, _ := store.Get(ctx, "k")
	assert.Equal(t, "10", m)

	require.NoError(t, d.Advance(ctx, "k", "10", true, "11"))
	m, _, _ = store.Get(ctx, "k")
	assert.Equal(t, "11", m)
}

// brokenReads fails every Get.
type brokenReads struct{ cursor.Store }

func (brokenReads) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("io error")
}

func TestCursorReadFailureBootstraps(t *testing.T) {
	ctx := context.Background()
	mem := cursor.NewMemoryStore()
	h := newHarness(t, []models.WatchTarget{target("o/r", models.KindIssues)}, brokenReads{mem}, nil)
	h.fetcher.setFeed("o/r", []feed.Entry{issue("2", 2), issue("1", 1)})

	rep := h.orch.RunCycle(ctx)
	assert.Empty(t, rep.Failures)
	assert.Empty(t, h.sender.got)
	m, _, _ := mem.Get(ctx, "o/r")
	assert.Equal(t, "2", m)
}
