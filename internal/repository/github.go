package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/CosmoTheDev/repowatch/internal/config"
	"github.com/CosmoTheDev/repowatch/internal/feed"
	"github.com/CosmoTheDev/repowatch/models"
	gogithub "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// GitHubProvider fetches activity from GitHub and GitHub Enterprise.
type GitHubProvider struct {
	clients []*gogithub.Client
	next    atomic.Uint64
	web     string // https://github.com, used to build commit links
}

// NewGitHub creates a GitHubProvider. Every configured token gets its own
// client and requests rotate across them; with no token the client is
// unauthenticated.
func NewGitHub(cfg config.GitHubConfig) (*GitHubProvider, error) {
	tokens := make([]string, 0, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		tokens = []string{""}
	}

	g := &GitHubProvider{web: "https://github.com"}
	for _, token := range tokens {
		client := gogithub.NewClient(nil)
		if token != "" {
			ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
			client = gogithub.NewClient(oauth2.NewClient(context.Background(), ts))
		}

		// Support GitHub Enterprise by overriding the base URL. A host with a
		// scheme is used as-is.
		if cfg.Host != "" && cfg.Host != "github.com" {
			base := cfg.Host
			if !strings.Contains(base, "://") {
				base = fmt.Sprintf("https://%s/", cfg.Host)
			}
			var err error
			client, err = client.WithEnterpriseURLs(base, base)
			if err != nil {
				return nil, fmt.Errorf("configuring GitHub enterprise URLs: %w", err)
			}
			g.web = strings.TrimSuffix(base, "/")
		}
		g.clients = append(g.clients, client)
	}
	return g, nil
}

func (g *GitHubProvider) Provider() string { return "github" }

// client returns the next client in rotation.
func (g *GitHubProvider) client() *gogithub.Client {
	n := g.next.Add(1) - 1
	return g.clients[n%uint64(len(g.clients))]
}

func (g *GitHubProvider) FetchFeed(ctx context.Context, repo string, limit int) ([]feed.Entry, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	events, resp, err := g.client().Activity.ListRepositoryEvents(ctx, owner, name, &gogithub.ListOptions{PerPage: limit})
	if err != nil {
		return nil, fmt.Errorf("listing events for %s: %w", repo, err)
	}
	if resp != nil && resp.Rate.Remaining < 10 {
		slog.Warn("GitHub rate limit low", "remaining", resp.Rate.Remaining, "reset", resp.Rate.Reset.Time)
	}

	out := make([]feed.Entry, 0, len(events))
	for _, ev := range events {
		if ev == nil {
			continue
		}
		out = append(out, g.convertEvent(repo, ev))
	}
	return out, nil
}

// convertEvent never fails: an unparseable payload degrades to OtherPayload.
func (g *GitHubProvider) convertEvent(repo string, ev *gogithub.Event) feed.Entry {
	e := feed.Entry{
		ID:        ev.GetID(),
		Kind:      feed.KindOther,
		Actor:     feed.Actor{Login: ev.GetActor().GetLogin(), DisplayName: ev.GetActor().GetName()},
		CreatedAt: ev.GetCreatedAt().Time,
		Payload:   feed.OtherPayload{Type: ev.GetType()},
	}

	raw, err := ev.ParsePayload()
	if err != nil {
		slog.Debug("unparseable event payload", "repo", repo, "event", e.ID, "type", ev.GetType(), "error", err)
		return e
	}

	switch p := raw.(type) {
	case *gogithub.PushEvent:
		e.Kind = feed.KindPush
		push := feed.PushPayload{Ref: p.GetRef(), Head: p.GetHead()}
		for _, c := range p.Commits {
			if c == nil {
				continue
			}
			sha := c.GetSHA()
			if sha == "" {
				sha = c.GetID()
			}
			push.Commits = append(push.Commits, feed.PushCommit{
				SHA:         sha,
				Message:     c.GetMessage(),
				AuthorName:  c.GetAuthor().GetName(),
				AuthorEmail: c.GetAuthor().GetEmail(),
				URL:         g.commitURL(repo, sha),
				Timestamp:   c.GetTimestamp().Time,
			})
		}
		e.Payload = push
	case *gogithub.IssuesEvent:
		e.Kind = feed.KindIssues
		e.Payload = feed.IssuePayload{Action: p.GetAction(), Issue: convertIssue(p.GetIssue())}
	case *gogithub.PullRequestEvent:
		e.Kind = feed.KindPullRequest
		e.Payload = feed.PullRequestPayload{
			Action: p.GetAction(),
			Pull:   convertPull(p.GetPullRequest()),
			Merged: p.GetPullRequest().GetMerged(),
		}
	case *gogithub.IssueCommentEvent:
		e.Kind = feed.KindIssueComment
		c := p.GetComment()
		e.Payload = feed.CommentPayload{
			Action:    p.GetAction(),
			CommentID: c.GetID(),
			Author:    c.GetUser().GetLogin(),
			Body:      c.GetBody(),
			URL:       c.GetHTMLURL(),
			CreatedAt: c.GetCreatedAt().Time,
			Target:    convertIssue(p.GetIssue()),
		}
	case *gogithub.PullRequestReviewCommentEvent:
		e.Kind = feed.KindReviewComment
		c := p.GetComment()
		e.Payload = feed.CommentPayload{
			Action:    p.GetAction(),
			CommentID: c.GetID(),
			Author:    c.GetUser().GetLogin(),
			Body:      c.GetBody(),
			URL:       c.GetHTMLURL(),
			CreatedAt: c.GetCreatedAt().Time,
			Target:    convertPull(p.GetPullRequest()),
		}
	}
	return e
}

func convertIssue(i *gogithub.Issue) feed.Item {
	if i == nil {
		return feed.Item{}
	}
	item := feed.Item{
		Number:    i.GetNumber(),
		Title:     i.GetTitle(),
		State:     i.GetState(),
		Author:    i.GetUser().GetLogin(),
		URL:       i.GetHTMLURL(),
		Body:      i.GetBody(),
		CreatedAt: i.GetCreatedAt().Time,
		UpdatedAt: i.GetUpdatedAt().Time,
	}
	for _, l := range i.Labels {
		item.Labels = append(item.Labels, models.Label{Name: l.GetName(), Color: l.GetColor()})
	}
	return item
}

func convertPull(pr *gogithub.PullRequest) feed.Item {
	if pr == nil {
		return feed.Item{}
	}
	item := feed.Item{
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		State:     pr.GetState(),
		Author:    pr.GetUser().GetLogin(),
		URL:       pr.GetHTMLURL(),
		Body:      pr.GetBody(),
		CreatedAt: pr.GetCreatedAt().Time,
		UpdatedAt: pr.GetUpdatedAt().Time,
	}
	for _, l := range pr.Labels {
		item.Labels = append(item.Labels, models.Label{Name: l.GetName(), Color: l.GetColor()})
	}
	return item
}

func (g *GitHubProvider) commitURL(repo, sha string) string {
	if sha == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/commit/%s", g.web, repo, sha)
}

func (g *GitHubProvider) FetchCommitFiles(ctx context.Context, repo, sha string) ([]models.FileChange, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	c, _, err := g.client().Repositories.GetCommit(ctx, owner, name, sha, nil)
	if err != nil {
		return nil, fmt.Errorf("getting commit %s@%s: %w", repo, sha, err)
	}
	files := make([]models.FileChange, 0, len(c.Files))
	for _, f := range c.Files {
		if f == nil {
			continue
		}
		files = append(files, models.FileChange{
			Filename:  f.GetFilename(),
			Status:    f.GetStatus(),
			Additions: f.GetAdditions(),
			Deletions: f.GetDeletions(),
			Patch:     f.GetPatch(),
		})
	}
	return files, nil
}

func (g *GitHubProvider) FetchRuns(ctx context.Context, repo string, limit int) ([]feed.RunEntry, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	runs, _, err := g.client().Actions.ListRepositoryWorkflowRuns(ctx, owner, name, &gogithub.ListWorkflowRunsOptions{
		ListOptions: gogithub.ListOptions{PerPage: limit},
	})
	if err != nil {
		return nil, fmt.Errorf("listing workflow runs for %s: %w", repo, err)
	}
	out := make([]feed.RunEntry, 0, len(runs.WorkflowRuns))
	for _, r := range runs.WorkflowRuns {
		if r == nil {
			continue
		}
		out = append(out, feed.RunEntry{
			ID:         r.GetID(),
			Name:       r.GetName(),
			Branch:     r.GetHeadBranch(),
			HeadSHA:    r.GetHeadSHA(),
			Status:     r.GetStatus(),
			Conclusion: r.GetConclusion(),
			Actor:      r.GetActor().GetLogin(),
			Event:      r.GetEvent(),
			URL:        r.GetHTMLURL(),
			RunNumber:  r.GetRunNumber(),
			CreatedAt:  r.GetCreatedAt().Time,
			UpdatedAt:  r.GetUpdatedAt().Time,
		})
	}
	return out, nil
}

func (g *GitHubProvider) DefaultBranch(ctx context.Context, repo string) (string, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return "", err
	}
	r, _, err := g.client().Repositories.Get(ctx, owner, name)
	if err != nil {
		return "", fmt.Errorf("getting GitHub repo %s: %w", repo, err)
	}
	if r.GetDefaultBranch() == "" {
		return "main", nil
	}
	return r.GetDefaultBranch(), nil
}
