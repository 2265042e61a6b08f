package watcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/CosmoTheDev/repowatch/internal/feed"
	"github.com/CosmoTheDev/repowatch/models"
	"golang.org/x/sync/errgroup"
)

// Enricher fills in per-commit file changes. It is best effort: a failed or
// timed-out fetch leaves that commit without files.
type Enricher struct {
	Concurrency int
	Timeout     time.Duration
}

// Enrich fetches file changes for every commit in place and returns once all
// fetches have finished or timed out.
func (en Enricher) Enrich(ctx context.Context, f feed.Fetcher, repo string, commits []models.CommitRecord) {
	if len(commits) == 0 {
		return
	}
	limit := en.Concurrency
	if limit <= 0 {
		limit = 4
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i := range commits {
		g.Go(func() error {
			callCtx := ctx
			if en.Timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, en.Timeout)
				defer cancel()
			}
			files, err := f.FetchCommitFiles(callCtx, repo, commits[i].SHA)
			if err != nil {
				slog.Warn("commit enrichment failed", "repo", repo, "sha", commits[i].ShortSHA(), "error", err)
				return nil
			}
			commits[i].FileChanges = files
			return nil
		})
	}
	_ = g.Wait()
}
