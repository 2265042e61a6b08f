package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/CosmoTheDev/repowatch/internal/config"
	"github.com/CosmoTheDev/repowatch/internal/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const githubEvents = `[
  {"id":"3","type":"PushEvent","actor":{"login":"alice"},"created_at":"2024-05-01T10:00:00Z",
   "payload":{"ref":"refs/heads/main","head":"abc1234def","commits":[
     {"sha":"abc1234def","message":"fix bug","author":{"name":"Alice","email":"a@example.com"}}]}},
  {"id":"2","type":"IssueCommentEvent","actor":{"login":"bob"},"created_at":"2024-05-01T09:00:00Z",
   "payload":{"action":"created",
     "issue":{"number":7,"title":"Crash on start","pull_request":{"url":"https://api.github.com/x"}},
     "comment":{"id":99,"body":"lgtm","user":{"login":"bob"},"html_url":"https://github.com/octo/hello/pull/7#c99"}}},
  {"id":"1","type":"WatchEvent","actor":{"login":"carol"},"created_at":"2024-05-01T08:00:00Z",
   "payload":{"action":"started"}}
]`

func newGitHubServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var auth []string
	mux := http.NewServeMux()
	record := func(r *http.Request) {
		mu.Lock()
		auth = append(auth, r.Header.Get("Authorization"))
		mu.Unlock()
	}
	mux.HandleFunc("/api/v3/repos/octo/hello/events", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		assert.Equal(t, "30", r.URL.Query().Get("per_page"))
		fmt.Fprint(w, githubEvents)
	})
	mux.HandleFunc("/api/v3/repos/octo/hello/actions/runs", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		fmt.Fprint(w, `{"total_count":1,"workflow_runs":[{"id":55,"name":"CI","head_branch":"main",
		  "head_sha":"abc","status":"completed","conclusion":"success","run_number":12,"event":"push",
		  "html_url":"https://github.com/octo/hello/actions/runs/55","actor":{"login":"alice"}}]}`)
	})
	mux.HandleFunc("/api/v3/repos/octo/hello/commits/abc", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		fmt.Fprint(w, `{"sha":"abc","files":[{"filename":"main.go","status":"modified","additions":3,"deletions":1,"patch":"@@ -1 +1 @@"}]}`)
	})
	mux.HandleFunc("/api/v3/repos/octo/hello", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		fmt.Fprint(w, `{"name":"hello","default_branch":"develop"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &auth
}

func TestGitHubFetchFeed(t *testing.T) {
	srv, _ := newGitHubServer(t)
	g, err := NewGitHub(config.GitHubConfig{Tokens: []string{"t1"}, Host: srv.URL})
	require.NoError(t, err)

	entries, err := g.FetchFeed(context.Background(), "octo/hello", 30)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "3", entries[0].ID)
	assert.Equal(t, feed.KindPush, entries[0].Kind)
	push, ok := entries[0].Payload.(feed.PushPayload)
	require.True(t, ok)
	assert.Equal(t, "refs/heads/main", push.Ref)
	require.Len(t, push.Commits, 1)
	assert.Equal(t, "abc1234def", push.Commits[0].SHA)
	assert.Equal(t, "Alice", push.Commits[0].AuthorName)
	assert.Contains(t, push.Commits[0].URL, "/octo/hello/commit/abc1234def")

	assert.Equal(t, feed.KindIssueComment, entries[1].Kind)
	c, ok := entries[1].Payload.(feed.CommentPayload)
	require.True(t, ok)
	assert.Equal(t, int64(99), c.CommentID)
	assert.Equal(t, 7, c.Target.Number)
	assert.Equal(t, "Crash on start", c.Target.Title)

	assert.Equal(t, feed.KindOther, entries[2].Kind)
	assert.Equal(t, "carol", entries[2].Actor.Login)
}

func TestGitHubRunsCommitAndBranch(t *testing.T) {
	srv, _ := newGitHubServer(t)
	g, err := NewGitHub(config.GitHubConfig{Host: srv.URL})
	require.NoError(t, err)
	ctx := context.Background()

	runs, err := g.FetchRuns(ctx, "octo/hello", 20)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "55", runs[0].EntryID())
	assert.Equal(t, "success", runs[0].Conclusion)
	assert.Equal(t, 12, runs[0].RunNumber)
	assert.Equal(t, "alice", runs[0].Actor)

	files, err := g.FetchCommitFiles(ctx, "octo/hello", "abc")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "main.go", files[0].Filename)
	assert.Equal(t, 3, files[0].Additions)

	branch, err := g.DefaultBranch(ctx, "octo/hello")
	require.NoError(t, err)
	assert.Equal(t, "develop", branch)
}

func TestGitHubRotatesTokens(t *testing.T) {
	srv, auth := newGitHubServer(t)
	g, err := NewGitHub(config.GitHubConfig{Tokens: []string{"t1", " ", "t2"}, Host: srv.URL})
	require.NoError(t, err)
	require.Len(t, g.clients, 2)

	for i := 0; i < 4; i++ {
		_, err := g.FetchFeed(context.Background(), "octo/hello", 30)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"Bearer t1", "Bearer t2", "Bearer t1", "Bearer t2"}, *auth)
}

func TestGitHubInvalidRepo(t *testing.T) {
	g, err := NewGitHub(config.GitHubConfig{})
	require.NoError(t, err)
	_, err = g.FetchFeed(context.Background(), "not-a-repo", 30)
	assert.Error(t, err)
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{"octo/hello", "github", false},
		{"https://github.com/octo/hello", "github", false},
		{"https://gitlab.com/group/proj", "gitlab", false},
		{"gitlab:group/proj", "gitlab", false},
		{"https://example.org/x", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := DetectProvider(tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
