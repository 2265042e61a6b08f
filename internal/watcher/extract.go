package watcher

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/CosmoTheDev/repowatch/internal/feed"
	"github.com/CosmoTheDev/repowatch/models"
)

// Extractors turn feed entries into normalized records. They never fail on
// missing optional fields; a record that panics during conversion is dropped
// and reported as an ExtractionFault.

// now is replaced in tests.
var now = time.Now

// guard runs fn for one entry and converts a panic into an ExtractionFault.
func guard(id string, faults *[]error, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			f := &ExtractionFault{EntryID: id, Cause: r}
			slog.Error("dropping malformed feed entry", "entry", id, "error", f)
			*faults = append(*faults, f)
		}
	}()
	fn()
}

func orTime(ts ...time.Time) time.Time {
	for _, t := range ts {
		if !t.IsZero() {
			return t
		}
	}
	return now().UTC()
}

func orString(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

// ExtractCommits returns one record per commit listed by each push to branch.
// A SHA listed by two pushes is reported twice. A push that lists no commits
// yields a single record built from its head SHA.
func ExtractCommits(entries []feed.Entry, branch string) ([]models.CommitRecord, []error) {
	var (
		out    []models.CommitRecord
		faults []error
	)
	suffix := "/" + branch
	for _, e := range entries {
		if e.Kind != feed.KindPush {
			continue
		}
		guard(e.ID, &faults, func() {
			p := e.Payload.(feed.PushPayload)
			if branch != "" && !strings.HasSuffix(p.Ref, suffix) {
				return
			}
			if len(p.Commits) == 0 {
				if p.Head == "" {
					return
				}
				out = append(out, models.CommitRecord{
					SHA:         p.Head,
					Message:     "Push to " + orString(branch, strings.TrimPrefix(p.Ref, "refs/heads/")),
					Author:      e.Actor.Name(),
					AuthorLogin: e.Actor.Login,
					Timestamp:   orTime(e.CreatedAt),
				})
				return
			}
			for _, c := range p.Commits {
				if c.SHA == "" {
					continue
				}
				out = append(out, models.CommitRecord{
					SHA:         c.SHA,
					Message:     c.Message,
					Author:      orString(c.AuthorName, e.Actor.Name()),
					AuthorLogin: e.Actor.Login,
					Timestamp:   orTime(c.Timestamp, e.CreatedAt),
					URL:         c.URL,
				})
			}
		})
	}
	return out, faults
}

func issueRecord(e feed.Entry, item feed.Item, action string) models.IssueRecord {
	return models.IssueRecord{
		Number:    item.Number,
		Title:     item.Title,
		State:     orString(item.State, "open"),
		Action:    action,
		Author:    orString(item.Author, e.Actor.Login),
		CreatedAt: orTime(item.CreatedAt, e.CreatedAt),
		UpdatedAt: orTime(item.UpdatedAt, e.CreatedAt),
		URL:       item.URL,
		Labels:    item.Labels,
		Body:      item.Body,
	}
}

// ExtractIssues returns one record per issue number, keeping the first
// (newest) occurrence. Entries without an issue are skipped.
func ExtractIssues(entries []feed.Entry) ([]models.IssueRecord, []error) {
	var (
		out    []models.IssueRecord
		faults []error
		seen   = map[int]bool{}
	)
	for _, e := range entries {
		if e.Kind != feed.KindIssues {
			continue
		}
		guard(e.ID, &faults, func() {
			p := e.Payload.(feed.IssuePayload)
			if p.Issue.Number == 0 || seen[p.Issue.Number] {
				return
			}
			seen[p.Issue.Number] = true
			out = append(out, issueRecord(e, p.Issue, p.Action))
		})
	}
	return out, faults
}

// ExtractPulls returns one record per pull request number. A merged pull is
// reported with state "merged" whatever its raw state.
func ExtractPulls(entries []feed.Entry) ([]models.IssueRecord, []error) {
	var (
		out    []models.IssueRecord
		faults []error
		seen   = map[int]bool{}
	)
	for _, e := range entries {
		if e.Kind != feed.KindPullRequest {
			continue
		}
		guard(e.ID, &faults, func() {
			p := e.Payload.(feed.PullRequestPayload)
			if p.Pull.Number == 0 || seen[p.Pull.Number] {
				return
			}
			seen[p.Pull.Number] = true
			rec := issueRecord(e, p.Pull, p.Action)
			rec.PullRequest = true
			if p.Merged {
				rec.State = "merged"
				if p.Action == "closed" {
					rec.Action = "merged"
				}
			}
			out = append(out, rec)
		})
	}
	return out, faults
}

// ExtractComments returns one record per comment ID. Review comments are
// tagged as pull request comments, everything else as issue comments.
func ExtractComments(entries []feed.Entry) ([]models.CommentRecord, []error) {
	var (
		out    []models.CommentRecord
		faults []error
		seen   = map[string]bool{}
	)
	for _, e := range entries {
		if !e.Kind.IsComment() {
			continue
		}
		guard(e.ID, &faults, func() {
			p := e.Payload.(feed.CommentPayload)
			key := "e" + e.ID
			if p.CommentID != 0 {
				key = strconv.FormatInt(p.CommentID, 10)
			}
			if seen[key] {
				return
			}
			seen[key] = true
			source := models.SourceIssue
			if e.Kind == feed.KindReviewComment {
				source = models.SourcePullRequest
			}
			out = append(out, models.CommentRecord{
				ID:           p.CommentID,
				TargetNumber: p.Target.Number,
				TargetTitle:  p.Target.Title,
				Source:       source,
				Author:       orString(p.Author, e.Actor.Login),
				Body:         p.Body,
				Timestamp:    orTime(p.CreatedAt, e.CreatedAt),
				URL:          orString(p.URL, p.Target.URL),
			})
		})
	}
	return out, faults
}

// FilterComments keeps the comments whose source kind is enabled.
func FilterComments(comments []models.CommentRecord, issues, pulls bool) []models.CommentRecord {
	var out []models.CommentRecord
	for _, c := range comments {
		if (c.Source == models.SourceIssue && issues) || (c.Source == models.SourcePullRequest && pulls) {
			out = append(out, c)
		}
	}
	return out
}

// ExtractRuns returns one record per run ID.
func ExtractRuns(runs []feed.RunEntry) []models.ActionRunRecord {
	var out []models.ActionRunRecord
	seen := map[int64]bool{}
	for _, r := range runs {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, models.ActionRunRecord{
			RunID:      r.ID,
			Name:       r.Name,
			Branch:     r.Branch,
			HeadSHA:    r.HeadSHA,
			Status:     r.Status,
			Conclusion: r.Conclusion,
			Actor:      r.Actor,
			Event:      r.Event,
			URL:        r.URL,
			CreatedAt:  orTime(r.CreatedAt),
			UpdatedAt:  orTime(r.UpdatedAt, r.CreatedAt),
			RunNumber:  r.RunNumber,
		})
	}
	return out
}
