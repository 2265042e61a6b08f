// Package repository implements feed.Fetcher for the supported hosting
// platforms.
package repository

import (
	"fmt"
	"strings"

	"github.com/CosmoTheDev/repowatch/internal/config"
	"github.com/CosmoTheDev/repowatch/internal/feed"
)

// Providers lists the platforms a subscription may name.
var Providers = []string{"github", "gitlab"}

// DetectProvider infers the hosting platform from a repository reference.
// Bare owner/name references default to GitHub.
func DetectProvider(ref string) (string, error) {
	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "gitlab:"):
		return "gitlab", nil
	case strings.HasPrefix(lower, "github:"):
		return "github", nil
	case strings.Contains(lower, "gitlab.com") || strings.Contains(lower, "gitlab."):
		return "gitlab", nil
	case strings.Contains(lower, "github."):
		return "github", nil
	case !strings.Contains(lower, "://") && strings.Count(lower, "/") >= 1:
		return "github", nil
	default:
		return "", fmt.Errorf("cannot detect provider from %q; use --provider flag", ref)
	}
}

// New returns the Fetcher for provider.
func New(provider string, cfg *config.Config) (feed.Fetcher, error) {
	switch provider {
	case "", "github":
		return NewGitHub(cfg.GitHub)
	case "gitlab":
		return NewGitLab(cfg.GitLab)
	default:
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}
}

// Set resolves a Fetcher by provider name.
type Set map[string]feed.Fetcher

// NewSet builds a Fetcher for every supported provider.
func NewSet(cfg *config.Config) (Set, error) {
	s := Set{}
	for _, p := range Providers {
		f, err := New(p, cfg)
		if err != nil {
			return nil, fmt.Errorf("creating %s fetcher: %w", p, err)
		}
		s[p] = f
	}
	return s, nil
}

// For returns the Fetcher for provider; an empty provider means GitHub.
func (s Set) For(provider string) (feed.Fetcher, error) {
	if provider == "" {
		provider = "github"
	}
	f, ok := s[provider]
	if !ok {
		return nil, fmt.Errorf("no fetcher configured for provider %q", provider)
	}
	return f, nil
}

func splitRepo(repo string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("invalid repository %q: expected owner/name", repo)
	}
	return owner, name, nil
}
