package models

import "time"

// Normalized records are what the renderer sees. They carry no reference back
// to the raw feed entry they came from.

// CommitRecord is a single commit that landed on a watched branch.
type CommitRecord struct {
	SHA         string       `json:"sha"`
	Message     string       `json:"message"`
	Author      string       `json:"author"`
	AuthorLogin string       `json:"author_login"`
	Timestamp   time.Time    `json:"timestamp"`
	URL         string       `json:"url"`
	FileChanges []FileChange `json:"files,omitempty"`
}

// ShortSHA returns the 7-character abbreviation.
func (c CommitRecord) ShortSHA() string {
	if len(c.SHA) > 7 {
		return c.SHA[:7]
	}
	return c.SHA
}

// FileChange is one file touched by a commit.
type FileChange struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch,omitempty"`
}

// Label is an issue or pull request label.
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// IssueRecord describes an issue or a pull request.
type IssueRecord struct {
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	State       string    `json:"state"`  // open | closed | merged
	Action      string    `json:"action"` // opened, closed, merged, ... (may be empty)
	Author      string    `json:"author"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	URL         string    `json:"url"`
	Labels      []Label   `json:"labels,omitempty"`
	Body        string    `json:"body,omitempty"`
	PullRequest bool      `json:"pull_request"`
}

// CommentSource tells which kind of item a comment was left on.
type CommentSource string

const (
	SourceIssue       CommentSource = "issue"
	SourcePullRequest CommentSource = "pull_request"
)

// CommentRecord is a comment on an issue or a pull request.
type CommentRecord struct {
	ID           int64         `json:"id"`
	TargetNumber int           `json:"target_number"`
	TargetTitle  string        `json:"target_title"`
	Source       CommentSource `json:"source"`
	Author       string        `json:"author"`
	Body         string        `json:"body"`
	Timestamp    time.Time     `json:"timestamp"`
	URL          string        `json:"url"`
}

// ActionRunRecord is a CI run update.
type ActionRunRecord struct {
	RunID      int64     `json:"run_id"`
	Name       string    `json:"name"`
	Branch     string    `json:"branch"`
	HeadSHA    string    `json:"head_sha"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion,omitempty"`
	Actor      string    `json:"actor"`
	Event      string    `json:"event"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	RunNumber  int       `json:"run_number"`
}

// Batch is one non-empty record set of a single kind for a single repository,
// ready to be rendered. Exactly one of the record slices is populated.
type Batch struct {
	Kind     ContentKind       `json:"kind"`
	Repo     string            `json:"repo"`
	Commits  []CommitRecord    `json:"commits,omitempty"`
	Issues   []IssueRecord     `json:"issues,omitempty"`
	Comments []CommentRecord   `json:"comments,omitempty"`
	Runs     []ActionRunRecord `json:"runs,omitempty"`
}

// Len returns the number of records in the batch.
func (b Batch) Len() int {
	switch b.Kind {
	case KindCommits:
		return len(b.Commits)
	case KindIssues, KindPulls:
		return len(b.Issues)
	case KindComments:
		return len(b.Comments)
	case KindActions:
		return len(b.Runs)
	}
	return 0
}
