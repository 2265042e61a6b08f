// Package feed defines the provider-neutral shape of a repository's activity
// stream and the Fetcher contract that providers implement.
//
// Entries are ephemeral: they are produced by a fetch, examined by one poll
// cycle and dropped. Only the ID of the newest entry survives, in the cursor
// store.
package feed

import (
	"strconv"
	"time"

	"github.com/CosmoTheDev/repowatch/models"
)

// Kind is the classification of a feed entry.
type Kind string

const (
	KindPush          Kind = "PushEvent"
	KindIssues        Kind = "IssuesEvent"
	KindPullRequest   Kind = "PullRequestEvent"
	KindIssueComment  Kind = "IssueCommentEvent"
	KindReviewComment Kind = "PullRequestReviewCommentEvent"
	KindOther         Kind = "Other"
)

// IsComment reports whether k carries a CommentPayload.
func (k Kind) IsComment() bool {
	return k == KindIssueComment || k == KindReviewComment
}

// Actor is whoever caused an entry.
type Actor struct {
	Login       string `json:"login"`
	DisplayName string `json:"display_name,omitempty"`
}

// Name prefers the display name.
func (a Actor) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Login
}

// Entry is one item of an activity feed. Feeds are ordered newest first.
type Entry struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Actor     Actor     `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
	Payload   Payload   `json:"-"`
}

// Payload is the kind-specific part of an Entry. The concrete type always
// matches Entry.Kind: PushPayload, IssuePayload, PullRequestPayload,
// CommentPayload or OtherPayload.
type Payload interface {
	isPayload()
}

// PushPayload describes commits pushed to a ref.
type PushPayload struct {
	Ref     string // refs/heads/<branch>
	Head    string // SHA after the push
	Commits []PushCommit
}

// PushCommit is one commit listed in a push. Providers may omit the list.
type PushCommit struct {
	SHA         string
	Message     string
	AuthorName  string
	AuthorEmail string
	URL         string
	Timestamp   time.Time
}

// Item is an issue or pull request as embedded in an entry.
type Item struct {
	Number    int
	Title     string
	State     string
	Author    string
	URL       string
	Body      string
	Labels    []models.Label
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IssuePayload is an issue state change.
type IssuePayload struct {
	Action string
	Issue  Item
}

// PullRequestPayload is a pull request state change.
type PullRequestPayload struct {
	Action string
	Pull   Item
	Merged bool
}

// CommentPayload is a comment on an issue or a pull request.
type CommentPayload struct {
	Action    string
	CommentID int64
	Author    string
	Body      string
	URL       string
	CreatedAt time.Time
	Target    Item
}

// OtherPayload covers every entry kind the watcher ignores.
type OtherPayload struct {
	Type string
}

func (PushPayload) isPayload()        {}
func (IssuePayload) isPayload()       {}
func (PullRequestPayload) isPayload() {}
func (CommentPayload) isPayload()     {}
func (OtherPayload) isPayload()       {}

// RunEntry is one CI run from a repository's runs feed, newest first.
type RunEntry struct {
	ID         int64
	Name       string
	Branch     string
	HeadSHA    string
	Status     string
	Conclusion string
	Actor      string
	Event      string
	URL        string
	RunNumber  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EntryID is the run ID in the cursor marker format.
func (r RunEntry) EntryID() string { return strconv.FormatInt(r.ID, 10) }

// EntryID returns e.ID; it lets entries and runs share the diff engine.
func (e Entry) EntryID() string { return e.ID }
