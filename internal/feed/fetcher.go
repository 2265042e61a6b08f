package feed

import (
	"context"

	"github.com/CosmoTheDev/repowatch/models"
)

// Fetcher reads activity from one hosting provider. repo is always the
// provider-local "owner/name" path.
type Fetcher interface {
	// Provider names the hosting platform ("github", "gitlab").
	Provider() string

	// FetchFeed returns up to limit of the newest activity entries.
	FetchFeed(ctx context.Context, repo string, limit int) ([]Entry, error)

	// FetchCommitFiles returns the files changed by one commit.
	FetchCommitFiles(ctx context.Context, repo, sha string) ([]models.FileChange, error)

	// FetchRuns returns up to limit of the newest CI runs.
	FetchRuns(ctx context.Context, repo string, limit int) ([]RunEntry, error)

	// DefaultBranch returns the repository's default branch name.
	DefaultBranch(ctx context.Context, repo string) (string, error)
}
