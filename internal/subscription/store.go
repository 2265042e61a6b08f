// Package subscription stores watch targets: which repositories are polled,
// which content kinds they report and where the batches go.
package subscription

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/CosmoTheDev/repowatch/internal/database"
	"github.com/CosmoTheDev/repowatch/internal/notify"
	"github.com/CosmoTheDev/repowatch/models"
	"go.yaml.in/yaml/v3"
)

// ErrNotFound is returned when no subscription matches.
var ErrNotFound = errors.New("subscription not found")

// ErrExists is returned by Add for a repository that is already watched.
var ErrExists = errors.New("repository is already subscribed")

// row mirrors the subscriptions table. List columns hold JSON arrays.
type row struct {
	ID           int64  `db:"id"`
	Provider     string `db:"provider"`
	Repo         string `db:"repo"`
	Branch       string `db:"branch"`
	Kinds        string `db:"kinds"`
	Destinations string `db:"destinations"`
	Enabled      bool   `db:"enabled"`
	CreatedAt    string `db:"created_at"`
}

const columns = `id, provider, repo, branch, kinds, destinations, enabled, created_at`

func toRow(t models.WatchTarget) (row, error) {
	kinds, err := json.Marshal(t.Kinds)
	if err != nil {
		return row{}, err
	}
	dests, err := json.Marshal(t.Destinations)
	if err != nil {
		return row{}, err
	}
	return row{
		ID:           t.ID,
		Provider:     t.Provider,
		Repo:         t.Repo,
		Branch:       t.Branch,
		Kinds:        string(kinds),
		Destinations: string(dests),
		Enabled:      t.Enabled,
		CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
}

func (r row) target() (models.WatchTarget, error) {
	t := models.WatchTarget{
		ID:       r.ID,
		Provider: r.Provider,
		Repo:     r.Repo,
		Branch:   r.Branch,
		Enabled:  r.Enabled,
	}
	if err := json.Unmarshal([]byte(r.Kinds), &t.Kinds); err != nil {
		return t, fmt.Errorf("subscription %d: decoding kinds: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Destinations), &t.Destinations); err != nil {
		return t, fmt.Errorf("subscription %d: decoding destinations: %w", r.ID, err)
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, r.CreatedAt)
	return t, nil
}

// Normalize validates t and fills defaults: provider github, the default
// kinds, and deduplicated kinds and destinations. Repo may carry a
// "gitlab:" or "github:" prefix instead of Provider.
func Normalize(t models.WatchTarget) (models.WatchTarget, error) {
	if p, rest, ok := strings.Cut(t.Repo, ":"); ok && (p == "github" || p == "gitlab") {
		if t.Provider != "" && t.Provider != p {
			return t, fmt.Errorf("repository %q conflicts with provider %q", t.Repo, t.Provider)
		}
		t.Provider, t.Repo = p, rest
	}
	switch t.Provider {
	case "":
		t.Provider = "github"
	case "github", "gitlab":
	default:
		return t, fmt.Errorf("unsupported provider %q (supported: github, gitlab)", t.Provider)
	}

	repo, err := models.NormalizeRepo(t.Repo)
	if err != nil {
		return t, err
	}
	t.Repo = repo
	t.Branch = strings.TrimSpace(t.Branch)

	if len(t.Kinds) == 0 {
		t.Kinds = slices.Clone(models.DefaultKinds)
	}
	kinds := make([]models.ContentKind, 0, len(t.Kinds))
	for _, k := range t.Kinds {
		pk, err := models.ParseKind(string(k))
		if err != nil {
			return t, err
		}
		if !slices.Contains(kinds, pk) {
			kinds = append(kinds, pk)
		}
	}
	t.Kinds = kinds

	dests := make([]string, 0, len(t.Destinations))
	for _, d := range t.Destinations {
		d = strings.TrimSpace(d)
		if err := notify.Validate(d); err != nil {
			return t, err
		}
		if !slices.Contains(dests, d) {
			dests = append(dests, d)
		}
	}
	t.Destinations = dests
	return t, nil
}

// Store is the database-backed subscription list.
type Store struct {
	db database.DB
}

// NewStore wraps db. The subscriptions table comes from the database
// migrations.
func NewStore(db database.DB) *Store { return &Store{db: db} }

// Add creates a subscription. It fails with ErrExists when the repository is
// already watched through the same provider.
func (s *Store) Add(ctx context.Context, t models.WatchTarget) (models.WatchTarget, error) {
	t, err := Normalize(t)
	if err != nil {
		return t, err
	}
	if _, err := s.Find(ctx, t.Provider, t.Repo); err == nil {
		return t, fmt.Errorf("%s: %w", t.RepoID(), ErrExists)
	} else if !errors.Is(err, ErrNotFound) {
		return t, err
	}

	t.ID = 0
	t.CreatedAt = time.Now().UTC().Truncate(time.Second)
	r, err := toRow(t)
	if err != nil {
		return t, err
	}
	id, err := s.db.Insert(ctx, "subscriptions", r)
	if err != nil {
		return t, fmt.Errorf("adding subscription %s: %w", t.RepoID(), err)
	}
	t.ID = id
	return t, nil
}

// Update rewrites the subscription with t.ID.
func (s *Store) Update(ctx context.Context, t models.WatchTarget) (models.WatchTarget, error) {
	prev, err := s.Get(ctx, t.ID)
	if err != nil {
		return t, err
	}
	t, err = Normalize(t)
	if err != nil {
		return t, err
	}
	t.CreatedAt = prev.CreatedAt
	r, err := toRow(t)
	if err != nil {
		return t, err
	}
	if err := s.db.Update(ctx, "subscriptions", r, "id = ?", t.ID); err != nil {
		return t, fmt.Errorf("updating subscription %d: %w", t.ID, err)
	}
	return t, nil
}

// Remove deletes the subscription with id.
func (s *Store) Remove(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.db.Exec(ctx, `DELETE FROM subscriptions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("removing subscription %d: %w", id, err)
	}
	return nil
}

// Toggle sets the enabled flag of the subscription with id.
func (s *Store) Toggle(ctx context.Context, id int64, enabled bool) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.db.Exec(ctx, `UPDATE subscriptions SET enabled = ? WHERE id = ?`, enabled, id); err != nil {
		return fmt.Errorf("toggling subscription %d: %w", id, err)
	}
	return nil
}

// Get returns the subscription with id.
func (s *Store) Get(ctx context.Context, id int64) (models.WatchTarget, error) {
	var r row
	err := s.db.Get(ctx, &r, `SELECT `+columns+` FROM subscriptions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WatchTarget{}, fmt.Errorf("id %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.WatchTarget{}, fmt.Errorf("reading subscription %d: %w", id, err)
	}
	return r.target()
}

// Find returns the subscription of a repository.
func (s *Store) Find(ctx context.Context, provider, repo string) (models.WatchTarget, error) {
	var r row
	err := s.db.Get(ctx, &r, `SELECT `+columns+` FROM subscriptions WHERE provider = ? AND repo = ?`, provider, repo)
	if errors.Is(err, sql.ErrNoRows) {
		return models.WatchTarget{}, fmt.Errorf("%s:%s: %w", provider, repo, ErrNotFound)
	}
	if err != nil {
		return models.WatchTarget{}, fmt.Errorf("reading subscription %s:%s: %w", provider, repo, err)
	}
	return r.target()
}

// List returns every subscription ordered by id.
func (s *Store) List(ctx context.Context) ([]models.WatchTarget, error) {
	return s.query(ctx, `SELECT `+columns+` FROM subscriptions ORDER BY id`)
}

// Active returns the enabled subscriptions that have at least one
// destination. It is the orchestrator's snapshot source.
func (s *Store) Active(ctx context.Context) ([]models.WatchTarget, error) {
	all, err := s.query(ctx, `SELECT `+columns+` FROM subscriptions WHERE enabled = ? ORDER BY id`, true)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, t := range all {
		if t.Active() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]models.WatchTarget, error) {
	var rows []row
	if err := s.db.Select(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}
	out := make([]models.WatchTarget, 0, len(rows))
	for _, r := range rows {
		t, err := r.target()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// File is the YAML layout of an exported subscription list.
type File struct {
	Subscriptions []Entry `yaml:"subscriptions"`
}

// Entry is one subscription in a YAML file. Enabled defaults to true.
type Entry struct {
	Provider     string               `yaml:"provider,omitempty"`
	Repo         string               `yaml:"repo"`
	Branch       string               `yaml:"branch,omitempty"`
	Kinds        []models.ContentKind `yaml:"kinds,omitempty"`
	Destinations []string             `yaml:"destinations"`
	Enabled      *bool                `yaml:"enabled,omitempty"`
}

// Export writes every subscription as YAML.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	all, err := s.List(ctx)
	if err != nil {
		return err
	}
	f := File{Subscriptions: make([]Entry, 0, len(all))}
	for _, t := range all {
		enabled := t.Enabled
		f.Subscriptions = append(f.Subscriptions, Entry{
			Provider:     t.Provider,
			Repo:         t.Repo,
			Branch:       t.Branch,
			Kinds:        t.Kinds,
			Destinations: t.Destinations,
			Enabled:      &enabled,
		})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encoding subscriptions: %w", err)
	}
	return enc.Close()
}

// ImportResult counts what Import did.
type ImportResult struct {
	Added   int
	Updated int
}

// Import reads a YAML subscription list. Entries for repositories that are
// already watched replace the stored subscription. Every entry is validated
// before anything is written.
func (s *Store) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	var res ImportResult
	var f File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return res, fmt.Errorf("decoding subscriptions: %w", err)
	}

	targets := make([]models.WatchTarget, 0, len(f.Subscriptions))
	for i, e := range f.Subscriptions {
		t, err := Normalize(models.WatchTarget{
			Provider:     e.Provider,
			Repo:         e.Repo,
			Branch:       e.Branch,
			Kinds:        e.Kinds,
			Destinations: e.Destinations,
			Enabled:      e.Enabled == nil || *e.Enabled,
		})
		if err != nil {
			return res, fmt.Errorf("entry %d: %w", i+1, err)
		}
		targets = append(targets, t)
	}

	for _, t := range targets {
		prev, err := s.Find(ctx, t.Provider, t.Repo)
		switch {
		case err == nil:
			t.ID = prev.ID
			if _, err := s.Update(ctx, t); err != nil {
				return res, err
			}
			res.Updated++
		case errors.Is(err, ErrNotFound):
			if _, err := s.Add(ctx, t); err != nil {
				return res, err
			}
			res.Added++
		default:
			return res, err
		}
	}
	return res, nil
}
