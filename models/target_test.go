package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRepo(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"octo/hello", "octo/hello"},
		{" Octo/Hello.git ", "octo/hello"},
		{"https://github.com/Octo/Hello", "octo/hello"},
		{"https://gitlab.example.com/group/sub/proj.git", "group/sub/proj"},
		{"https://github.com/octo/hello/", "octo/hello"},
	}
	for _, tt := range tests {
		got, err := NormalizeRepo(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "octo", "/hello", "octo/", "https://github.com/octo"} {
		_, err := NormalizeRepo(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Pulls ")
	require.NoError(t, err)
	assert.Equal(t, KindPulls, k)

	_, err = ParseKind("comments")
	assert.Error(t, err, "comments follow issues/pulls and are not subscribable")
}

func TestWatchTargetKeys(t *testing.T) {
	gh := WatchTarget{Repo: "octo/hello"}
	assert.Equal(t, "octo/hello", gh.RepoID())
	assert.Equal(t, "octo/hello:actions", gh.RunsKey())

	gl := WatchTarget{Provider: "gitlab", Repo: "group/proj"}
	assert.Equal(t, "gitlab:group/proj", gl.RepoID())
	assert.Equal(t, "gitlab:group/proj:actions", gl.RunsKey())
}

func TestWatchTargetActive(t *testing.T) {
	assert.True(t, WatchTarget{Enabled: true, Destinations: []string{"slack"}}.Active())
	assert.False(t, WatchTarget{Enabled: false, Destinations: []string{"slack"}}.Active())
	assert.False(t, WatchTarget{Enabled: true}.Active())
}

func TestBatchLen(t *testing.T) {
	assert.Equal(t, 2, Batch{Kind: KindPulls, Issues: make([]IssueRecord, 2)}.Len())
	assert.Equal(t, 1, Batch{Kind: KindActions, Runs: make([]ActionRunRecord, 1)}.Len())
	assert.Equal(t, 0, Batch{Kind: KindCommits, Issues: make([]IssueRecord, 3)}.Len())
}
