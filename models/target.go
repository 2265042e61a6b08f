package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ContentKind is one independently subscribable content stream of a repository.
type ContentKind string

const (
	KindCommits ContentKind = "commits"
	KindIssues  ContentKind = "issues"
	KindPulls   ContentKind = "pulls"
	KindActions ContentKind = "actions"
	// KindComments is never subscribed to directly: comment delivery follows
	// whichever of issues/pulls is enabled.
	KindComments ContentKind = "comments"
)

// SubscribableKinds are the kinds a WatchTarget may enable.
var SubscribableKinds = []ContentKind{KindCommits, KindIssues, KindPulls, KindActions}

// DefaultKinds are enabled when a subscription does not name any.
var DefaultKinds = []ContentKind{KindCommits, KindIssues, KindPulls}

// ParseKind validates a user-supplied kind name.
func ParseKind(s string) (ContentKind, error) {
	k := ContentKind(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(SubscribableKinds, k) {
		return k, nil
	}
	return "", fmt.Errorf("unknown content kind %q (valid: commits, issues, pulls, actions)", s)
}

// WatchTarget is a subscription: one repository, the kinds to report and the
// destinations that receive them.
type WatchTarget struct {
	ID           int64         `json:"id"           yaml:"-"`
	Provider     string        `json:"provider"     yaml:"provider,omitempty"` // github | gitlab
	Repo         string        `json:"repo"         yaml:"repo"`               // owner/name
	Branch       string        `json:"branch"       yaml:"branch,omitempty"`
	Kinds        []ContentKind `json:"kinds"        yaml:"kinds"`
	Destinations []string      `json:"destinations" yaml:"destinations"`
	Enabled      bool          `json:"enabled"      yaml:"enabled"`
	CreatedAt    time.Time     `json:"created_at"   yaml:"-"`
}

// RepoID is the dedup key of the repository's activity feed. GitHub targets
// keep the bare owner/name; other providers are prefixed.
func (t WatchTarget) RepoID() string {
	if t.Provider == "" || t.Provider == "github" {
		return t.Repo
	}
	return t.Provider + ":" + t.Repo
}

// RunsKey is the dedup key of the repository's CI runs feed.
func (t WatchTarget) RunsKey() string { return t.RepoID() + ":actions" }

// Wants reports whether kind is enabled for this target.
func (t WatchTarget) Wants(kind ContentKind) bool {
	return slices.Contains(t.Kinds, kind)
}

// Active reports whether the target takes part in poll cycles.
func (t WatchTarget) Active() bool {
	return t.Enabled && len(t.Destinations) > 0
}

// NormalizeRepo lower-cases and validates an owner/name reference.
func NormalizeRepo(repo string) (string, error) {
	r := strings.ToLower(strings.TrimSpace(repo))
	r = strings.TrimSuffix(r, ".git")
	if _, rest, ok := strings.Cut(r, "://"); ok {
		// Drop scheme and host of a web URL.
		_, r, _ = strings.Cut(rest, "/")
		r = strings.TrimSuffix(r, "/")
	}
	owner, name, ok := strings.Cut(r, "/")
	if !ok || owner == "" || name == "" {
		return "", fmt.Errorf("invalid repository %q: expected owner/repo", repo)
	}
	return r, nil
}
