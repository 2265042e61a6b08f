// Package watcher is the polling engine: it diffs each watched repository's
// activity against its cursor, classifies what is new and hands the resulting
// batches to rendering and delivery.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CosmoTheDev/repowatch/internal/cursor"
	"github.com/CosmoTheDev/repowatch/internal/feed"
	"github.com/CosmoTheDev/repowatch/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// TargetSource supplies the active watch targets at the start of a cycle.
type TargetSource interface {
	Active(ctx context.Context) ([]models.WatchTarget, error)
}

// FetcherSource resolves the Fetcher of a provider.
type FetcherSource interface {
	For(provider string) (feed.Fetcher, error)
}

// Options controls cycle behaviour.
type Options struct {
	GapCap            int
	Workers           int
	EnrichConcurrency int
	RequestTimeout    time.Duration
	FeedSize          int
	RunSize           int
	// OnCycle receives every finished cycle's report.
	OnCycle func(CycleReport)
}

// TargetFailure is one target that did not complete a cycle.
type TargetFailure struct {
	Repo string `json:"repo"`
	Err  error  `json:"-"`
}

// CycleReport summarises one poll cycle.
type CycleReport struct {
	ID         string
	StartedAt  time.Time
	Duration   time.Duration
	Targets    int
	NewEntries int
	Batches    int
	Delivered  int
	Failures   []TargetFailure
	// Err is set when the cycle could not start at all.
	Err error
}

// Orchestrator runs poll cycles over the active targets.
type Orchestrator struct {
	targets    TargetSource
	fetchers   FetcherSource
	cursors    cursor.Store
	dispatcher *Dispatcher
	opts       Options
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(targets TargetSource, fetchers FetcherSource, cursors cursor.Store, d *Dispatcher, opts Options) *Orchestrator {
	if opts.GapCap <= 0 {
		opts.GapCap = DefaultGapCap
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.FeedSize <= 0 {
		opts.FeedSize = 30
	}
	if opts.RunSize <= 0 {
		opts.RunSize = 20
	}
	return &Orchestrator{targets: targets, fetchers: fetchers, cursors: cursors, dispatcher: d, opts: opts}
}

// targetResult is what one target contributed to a cycle.
type targetResult struct {
	newEntries int
	dispatch   DispatchResult
}

// RunCycle processes every active target once. Targets run concurrently up to
// Options.Workers; a target's failure never affects the others.
func (o *Orchestrator) RunCycle(ctx context.Context) CycleReport {
	rep := CycleReport{ID: newCycleID(), StartedAt: time.Now().UTC()}
	log := slog.With("cycle", rep.ID)

	defer func() {
		rep.Duration = time.Since(rep.StartedAt)
		log.Info("poll cycle finished",
			"targets", rep.Targets, "failed", len(rep.Failures), "new_entries", rep.NewEntries,
			"batches", rep.Batches, "duration", rep.Duration.Round(time.Millisecond))
		if o.opts.OnCycle != nil {
			o.opts.OnCycle(rep)
		}
	}()

	all, err := o.targets.Active(ctx)
	if err != nil {
		rep.Err = fmt.Errorf("loading watch targets: %w", err)
		log.Error("poll cycle aborted", "error", rep.Err)
		return rep
	}
	var targets []models.WatchTarget
	for _, t := range all {
		if t.Active() {
			targets = append(targets, t)
		}
	}
	rep.Targets = len(targets)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(o.opts.Workers)
	for _, t := range targets {
		g.Go(func() error {
			res, err := o.checkTarget(ctx, t)
			mu.Lock()
			defer mu.Unlock()
			rep.NewEntries += res.newEntries
			rep.Batches += res.dispatch.Batches
			rep.Delivered += res.dispatch.Delivered
			if err != nil {
				log.Error("target failed", "repo", t.RepoID(), "error", err)
				rep.Failures = append(rep.Failures, TargetFailure{Repo: t.RepoID(), Err: err})
			}
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

// CheckTarget runs one target through fetch, diff, extract and dispatch
// outside of a cycle.
func (o *Orchestrator) CheckTarget(ctx context.Context, t models.WatchTarget) error {
	_, err := o.checkTarget(ctx, t)
	return err
}

func (o *Orchestrator) checkTarget(ctx context.Context, t models.WatchTarget) (res targetResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while checking %s: %v", t.RepoID(), r)
		}
	}()

	f, err := o.fetchers.For(t.Provider)
	if err != nil {
		return res, err
	}

	var errs []error
	if t.Wants(models.KindCommits) || t.Wants(models.KindIssues) || t.Wants(models.KindPulls) {
		n, d, err := o.checkFeed(ctx, f, t)
		res.newEntries += n
		mergeDispatch(&res.dispatch, d)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if t.Wants(models.KindActions) {
		n, d, err := o.checkRuns(ctx, f, t)
		res.newEntries += n
		mergeDispatch(&res.dispatch, d)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return res, errors.Join(errs...)
}

func mergeDispatch(dst *DispatchResult, src DispatchResult) {
	dst.Batches += src.Batches
	dst.Delivered += src.Delivered
	dst.Errors = append(dst.Errors, src.Errors...)
}

// readCursor treats a failed read as "no cursor": the target bootstraps.
func (o *Orchestrator) readCursor(ctx context.Context, key string) (string, bool) {
	marker, ok, err := o.cursors.Get(ctx, key)
	if err != nil {
		slog.Error("cursor read failed, bootstrapping", "key", key, "error", &StoreError{Op: "read", Key: key, Err: err})
		return "", false
	}
	return marker, ok
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.opts.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.opts.RequestTimeout)
}

func (o *Orchestrator) checkFeed(ctx context.Context, f feed.Fetcher, t models.WatchTarget) (int, DispatchResult, error) {
	key := t.RepoID()
	fctx, cancel := o.withTimeout(ctx)
	entries, err := f.FetchFeed(fctx, t.Repo, o.opts.FeedSize)
	cancel()
	if err != nil {
		return 0, DispatchResult{}, &FetchError{Repo: key, Feed: "activity", Err: err}
	}

	marker, had := o.readCursor(ctx, key)
	diff := DiffSince(entries, marker, had, o.opts.GapCap)
	logDiff(key, diff.Outcome, len(diff.New))
	if diff.AdvanceTo == "" {
		return 0, DispatchResult{}, nil
	}

	batches := o.classify(t, diff.New)

	// The cursor moves before delivery: a failed write leaves the window to
	// be re-derived next cycle instead of delivering it twice.
	if err := o.dispatcher.Advance(ctx, key, marker, had, diff.AdvanceTo); err != nil {
		return len(diff.New), DispatchResult{}, err
	}

	for i := range batches {
		if batches[i].Kind == models.KindCommits {
			Enricher{Concurrency: o.opts.EnrichConcurrency, Timeout: o.opts.RequestTimeout}.
				Enrich(ctx, f, t.Repo, batches[i].Commits)
		}
	}
	return len(diff.New), o.dispatcher.Dispatch(ctx, t.Destinations, batches), nil
}

// classify builds one batch per enabled kind. Comments ride along with
// whichever of issues and pulls is enabled.
func (o *Orchestrator) classify(t models.WatchTarget, entries []feed.Entry) []models.Batch {
	repo := t.RepoID()
	var batches []models.Batch
	report := func(faults []error) {
		for _, f := range faults {
			slog.Warn("extraction fault", "repo", repo, "error", f)
		}
	}

	if t.Wants(models.KindCommits) {
		commits, faults := ExtractCommits(entries, t.Branch)
		report(faults)
		if len(commits) > 0 {
			batches = append(batches, models.Batch{Kind: models.KindCommits, Repo: repo, Commits: commits})
		}
	}
	if t.Wants(models.KindIssues) {
		issues, faults := ExtractIssues(entries)
		report(faults)
		if len(issues) > 0 {
			batches = append(batches, models.Batch{Kind: models.KindIssues, Repo: repo, Issues: issues})
		}
	}
	if t.Wants(models.KindPulls) {
		pulls, faults := ExtractPulls(entries)
		report(faults)
		if len(pulls) > 0 {
			batches = append(batches, models.Batch{Kind: models.KindPulls, Repo: repo, Issues: pulls})
		}
	}
	if t.Wants(models.KindIssues) || t.Wants(models.KindPulls) {
		comments, faults := ExtractComments(entries)
		report(faults)
		comments = FilterComments(comments, t.Wants(models.KindIssues), t.Wants(models.KindPulls))
		if len(comments) > 0 {
			batches = append(batches, models.Batch{Kind: models.KindComments, Repo: repo, Comments: comments})
		}
	}
	return batches
}

func (o *Orchestrator) checkRuns(ctx context.Context, f feed.Fetcher, t models.WatchTarget) (int, DispatchResult, error) {
	key := t.RunsKey()
	fctx, cancel := o.withTimeout(ctx)
	runs, err := f.FetchRuns(fctx, t.Repo, o.opts.RunSize)
	cancel()
	if err != nil {
		return 0, DispatchResult{}, &FetchError{Repo: t.RepoID(), Feed: "runs", Err: err}
	}

	marker, had := o.readCursor(ctx, key)
	diff := DiffSince(runs, marker, had, o.opts.GapCap)
	logDiff(key, diff.Outcome, len(diff.New))
	if diff.AdvanceTo == "" {
		return 0, DispatchResult{}, nil
	}

	records := ExtractRuns(diff.New)
	if err := o.dispatcher.Advance(ctx, key, marker, had, diff.AdvanceTo); err != nil {
		return len(diff.New), DispatchResult{}, err
	}
	batch := models.Batch{Kind: models.KindActions, Repo: t.RepoID(), Runs: records}
	return len(diff.New), o.dispatcher.Dispatch(ctx, t.Destinations, []models.Batch{batch}), nil
}

func logDiff(key string, outcome Outcome, n int) {
	switch outcome {
	case OutcomeBootstrap:
		slog.Info("cursor bootstrapped", "key", key)
	case OutcomeGap:
		slog.Warn("cursor not in feed window, entries may have been missed", "key", key, "emitted", n)
	case OutcomeStale:
		slog.Warn("feed window older than cursor, keeping cursor", "key", key, "error", ErrStaleWindow)
	case OutcomeAdvanced:
		slog.Debug("new entries", "key", key, "count", n)
	}
}

func newCycleID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
