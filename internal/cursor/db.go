package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CosmoTheDev/repowatch/internal/database"
)

// row mirrors the cursors table.
type row struct {
	Key       string `db:"dedup_key"`
	Marker    string `db:"marker"`
	UpdatedAt string `db:"updated_at"`
}

// DBStore persists cursors in the cursors table and serves reads from a
// write-through cache populated by Load.
type DBStore struct {
	db    database.DB
	cache MemoryStore
}

// NewDBStore wraps db. Call Load before use to warm the cache.
func NewDBStore(db database.DB) *DBStore {
	return &DBStore{db: db}
}

// Load reads every persisted cursor into the cache.
func (s *DBStore) Load(ctx context.Context) error {
	var rows []row
	if err := s.db.Select(ctx, &rows, `SELECT dedup_key, marker, updated_at FROM cursors`); err != nil {
		return fmt.Errorf("loading cursors: %w", err)
	}
	for _, r := range rows {
		s.cache.m.Store(r.Key, Entry{Key: r.Key, Marker: r.Marker, UpdatedAt: parseTime(r.UpdatedAt)})
	}
	slog.Debug("cursor store loaded", "driver", s.db.Driver(), "cursors", len(rows))
	return nil
}

func (s *DBStore) Get(ctx context.Context, key string) (string, bool, error) {
	if m, ok, _ := s.cache.Get(ctx, key); ok {
		return m, true, nil
	}
	var r row
	err := s.db.Get(ctx, &r, `SELECT dedup_key, marker, updated_at FROM cursors WHERE dedup_key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading cursor %q: %w", key, err)
	}
	s.cache.m.Store(key, Entry{Key: r.Key, Marker: r.Marker, UpdatedAt: parseTime(r.UpdatedAt)})
	return r.Marker, true, nil
}

// Set writes to the database first; the cache only changes on success.
func (s *DBStore) Set(ctx context.Context, key, marker string) error {
	now := time.Now().UTC()
	r := row{Key: key, Marker: marker, UpdatedAt: now.Format(time.RFC3339Nano)}
	if err := s.db.Upsert(ctx, "cursors", r, []string{"dedup_key"}); err != nil {
		return fmt.Errorf("writing cursor %q: %w", key, err)
	}
	s.cache.m.Store(key, Entry{Key: key, Marker: marker, UpdatedAt: now})
	return nil
}

func (s *DBStore) Delete(ctx context.Context, key string) error {
	if err := s.db.Exec(ctx, `DELETE FROM cursors WHERE dedup_key = ?`, key); err != nil {
		return fmt.Errorf("deleting cursor %q: %w", key, err)
	}
	s.cache.m.Delete(key)
	return nil
}

func (s *DBStore) List(ctx context.Context) ([]Entry, error) {
	var rows []row
	if err := s.db.Select(ctx, &rows, `SELECT dedup_key, marker, updated_at FROM cursors ORDER BY dedup_key`); err != nil {
		return nil, fmt.Errorf("listing cursors: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Entry{Key: r.Key, Marker: r.Marker, UpdatedAt: parseTime(r.UpdatedAt)})
	}
	return out, nil
}

// Close is a no-op: every Set is already durable. The database handle is
// owned by the caller.
func (s *DBStore) Close() error { return nil }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
