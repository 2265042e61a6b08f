package repository

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/CosmoTheDev/repowatch/internal/config"
	"github.com/CosmoTheDev/repowatch/internal/feed"
	"github.com/CosmoTheDev/repowatch/models"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// GitLabProvider fetches activity from GitLab (cloud and self-hosted).
type GitLabProvider struct {
	client *gitlab.Client
	web    string
}

// NewGitLab creates a GitLabProvider from the given configuration. Retries
// are disabled: a failed fetch is retried by the next poll cycle.
func NewGitLab(cfg config.GitLabConfig) (*GitLabProvider, error) {
	opts := []gitlab.ClientOptionFunc{gitlab.WithCustomRetryMax(0)}
	web := "https://gitlab.com"
	if cfg.Host != "" && cfg.Host != "gitlab.com" {
		base := cfg.Host
		if !strings.Contains(base, "://") {
			base = "https://" + cfg.Host
		}
		web = strings.TrimSuffix(base, "/")
		opts = append(opts, gitlab.WithBaseURL(web+"/api/v4/"))
	}

	client, err := gitlab.NewClient(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GitLab client: %w", err)
	}
	return &GitLabProvider{client: client, web: web}, nil
}

func (g *GitLabProvider) Provider() string { return "gitlab" }

// glEvent is the subset of the project events payload the watcher reads.
type glEvent struct {
	ID          int64     `json:"id"`
	ActionName  string    `json:"action_name"`
	TargetIID   int       `json:"target_iid"`
	TargetType  string    `json:"target_type"`
	TargetTitle string    `json:"target_title"`
	CreatedAt   time.Time `json:"created_at"`
	Author      struct {
		Username string `json:"username"`
		Name     string `json:"name"`
	} `json:"author"`
	PushData *struct {
		CommitCount int    `json:"commit_count"`
		Action      string `json:"action"`
		RefType     string `json:"ref_type"`
		CommitFrom  string `json:"commit_from"`
		CommitTo    string `json:"commit_to"`
		Ref         string `json:"ref"`
		CommitTitle string `json:"commit_title"`
	} `json:"push_data"`
	Note *struct {
		ID           int64     `json:"id"`
		Body         string    `json:"body"`
		NoteableType string    `json:"noteable_type"`
		NoteableIID  int       `json:"noteable_iid"`
		CreatedAt    time.Time `json:"created_at"`
	} `json:"note"`
}

type glListOptions struct {
	PerPage int `url:"per_page,omitempty"`
}

func (g *GitLabProvider) FetchFeed(ctx context.Context, repo string, limit int) ([]feed.Entry, error) {
	req, err := g.client.NewRequest(http.MethodGet,
		"projects/"+gitlab.PathEscape(repo)+"/events",
		&glListOptions{PerPage: limit},
		[]gitlab.RequestOptionFunc{gitlab.WithContext(ctx)})
	if err != nil {
		return nil, fmt.Errorf("building events request for %s: %w", repo, err)
	}
	var events []glEvent
	if _, err := g.client.Do(req, &events); err != nil {
		return nil, fmt.Errorf("listing events for %s: %w", repo, err)
	}

	out := make([]feed.Entry, 0, len(events))
	for i := range events {
		out = append(out, g.convertEvent(repo, &events[i]))
	}
	return out, nil
}

func (g *GitLabProvider) convertEvent(repo string, ev *glEvent) feed.Entry {
	e := feed.Entry{
		ID:        strconv.FormatInt(ev.ID, 10),
		Kind:      feed.KindOther,
		Actor:     feed.Actor{Login: ev.Author.Username, DisplayName: ev.Author.Name},
		CreatedAt: ev.CreatedAt,
		Payload:   feed.OtherPayload{Type: ev.ActionName},
	}

	switch {
	case ev.PushData != nil:
		if ev.PushData.RefType != "branch" || ev.PushData.Action == "removed" {
			return e
		}
		e.Kind = feed.KindPush
		push := feed.PushPayload{Ref: "refs/heads/" + ev.PushData.Ref, Head: ev.PushData.CommitTo}
		// The events API only carries the head commit's title.
		if ev.PushData.CommitCount == 1 && ev.PushData.CommitTitle != "" {
			push.Commits = []feed.PushCommit{{
				SHA:        ev.PushData.CommitTo,
				Message:    ev.PushData.CommitTitle,
				AuthorName: ev.Author.Name,
				URL:        g.commitURL(repo, ev.PushData.CommitTo),
				Timestamp:  ev.CreatedAt,
			}}
		}
		e.Payload = push

	case ev.Note != nil:
		onMR := ev.Note.NoteableType == "MergeRequest"
		// Notes on merge requests are reported as pull request comments.
		e.Kind = feed.KindIssueComment
		if onMR {
			e.Kind = feed.KindReviewComment
		}
		item := g.item(repo, ev.Note.NoteableIID, ev.TargetTitle, onMR)
		e.Payload = feed.CommentPayload{
			Action:    "created",
			CommentID: ev.Note.ID,
			Author:    ev.Author.Username,
			Body:      ev.Note.Body,
			URL:       fmt.Sprintf("%s#note_%d", item.URL, ev.Note.ID),
			CreatedAt: ev.Note.CreatedAt,
			Target:    item,
		}

	case ev.TargetType == "Issue":
		e.Kind = feed.KindIssues
		item := g.item(repo, ev.TargetIID, ev.TargetTitle, false)
		item.State = issueState(ev.ActionName)
		e.Payload = feed.IssuePayload{Action: ev.ActionName, Issue: item}

	case ev.TargetType == "MergeRequest":
		e.Kind = feed.KindPullRequest
		item := g.item(repo, ev.TargetIID, ev.TargetTitle, true)
		merged := ev.ActionName == "accepted" || ev.ActionName == "merged"
		action := ev.ActionName
		if merged {
			action = "closed"
		}
		item.State = issueState(action)
		e.Payload = feed.PullRequestPayload{Action: action, Pull: item, Merged: merged}
	}
	return e
}

func issueState(action string) string {
	if action == "closed" {
		return "closed"
	}
	return "open"
}

func (g *GitLabProvider) item(repo string, iid int, title string, mr bool) feed.Item {
	kind := "issues"
	if mr {
		kind = "merge_requests"
	}
	return feed.Item{
		Number: iid,
		Title:  title,
		URL:    fmt.Sprintf("%s/%s/-/%s/%d", g.web, repo, kind, iid),
	}
}

func (g *GitLabProvider) commitURL(repo, sha string) string {
	return fmt.Sprintf("%s/%s/-/commit/%s", g.web, repo, sha)
}

func (g *GitLabProvider) FetchCommitFiles(ctx context.Context, repo, sha string) ([]models.FileChange, error) {
	diffs, _, err := g.client.Commits.GetCommitDiff(repo, sha, &gitlab.GetCommitDiffOptions{}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("getting commit diff %s@%s: %w", repo, sha, err)
	}
	files := make([]models.FileChange, 0, len(diffs))
	for _, d := range diffs {
		if d == nil {
			continue
		}
		status := "modified"
		switch {
		case d.NewFile:
			status = "added"
		case d.DeletedFile:
			status = "removed"
		case d.RenamedFile:
			status = "renamed"
		}
		add, del := countDiffLines(d.Diff)
		files = append(files, models.FileChange{
			Filename:  d.NewPath,
			Status:    status,
			Additions: add,
			Deletions: del,
			Patch:     d.Diff,
		})
	}
	return files, nil
}

// countDiffLines counts added and removed lines of a unified diff hunk set.
func countDiffLines(diff string) (add, del int) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			add++
		case strings.HasPrefix(line, "-"):
			del++
		}
	}
	return add, del
}

func (g *GitLabProvider) FetchRuns(ctx context.Context, repo string, limit int) ([]feed.RunEntry, error) {
	pipelines, _, err := g.client.Pipelines.ListProjectPipelines(repo, &gitlab.ListProjectPipelinesOptions{
		ListOptions: gitlab.ListOptions{PerPage: int64(limit)},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing pipelines for %s: %w", repo, err)
	}
	out := make([]feed.RunEntry, 0, len(pipelines))
	for _, p := range pipelines {
		if p == nil {
			continue
		}
		status, conclusion := pipelineStatus(p.Status)
		r := feed.RunEntry{
			ID:         int64(p.ID),
			Name:       "pipeline",
			Branch:     p.Ref,
			HeadSHA:    p.SHA,
			Status:     status,
			Conclusion: conclusion,
			Event:      p.Source,
			URL:        p.WebURL,
			RunNumber:  int(p.IID),
		}
		if p.CreatedAt != nil {
			r.CreatedAt = *p.CreatedAt
		}
		if p.UpdatedAt != nil {
			r.UpdatedAt = *p.UpdatedAt
		}
		out = append(out, r)
	}
	return out, nil
}

// pipelineStatus maps a GitLab pipeline status onto the status/conclusion
// pair used for CI runs.
func pipelineStatus(s string) (status, conclusion string) {
	switch s {
	case "success":
		return "completed", "success"
	case "failed":
		return "completed", "failure"
	case "canceled":
		return "completed", "cancelled"
	case "skipped":
		return "completed", "skipped"
	case "running":
		return "in_progress", ""
	default:
		return "queued", ""
	}
}

func (g *GitLabProvider) DefaultBranch(ctx context.Context, repo string) (string, error) {
	proj, _, err := g.client.Projects.GetProject(repo, nil, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("getting GitLab project %s: %w", repo, err)
	}
	if proj.DefaultBranch == "" {
		return "main", nil
	}
	return proj.DefaultBranch, nil
}
