// Package cursor persists the last-seen marker of every dedup key.
//
// A dedup key is a repository ID, or a repository ID with a ":actions"
// suffix for the CI runs feed. Markers are opaque feed entry IDs. Stores are
// safe for concurrent use across keys; callers guarantee a single writer per
// key.
package cursor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CosmoTheDev/repowatch/internal/config"
	"github.com/CosmoTheDev/repowatch/internal/database"
)

var (
	// ErrStoreClosed is returned by stores used after Close.
	ErrStoreClosed = errors.New("cursor store closed")
	// ErrNotNewer rejects an advance to a marker that is not newer than the
	// stored one.
	ErrNotNewer = errors.New("marker is not newer than the stored cursor")
)

// Entry is one persisted cursor.
type Entry struct {
	Key       string    `json:"key"`
	Marker    string    `json:"marker"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the cursor persistence contract.
type Store interface {
	// Get returns the marker for key; ok is false when no cursor exists.
	Get(ctx context.Context, key string) (marker string, ok bool, err error)
	// Set durably records marker for key. When it returns an error the
	// previous marker is still in effect.
	Set(ctx context.Context, key, marker string) error
	// Delete forgets key so the next observation bootstraps again.
	Delete(ctx context.Context, key string) error
	// List returns every cursor ordered by key.
	List(ctx context.Context) ([]Entry, error)
	// Close flushes pending state and releases resources.
	Close() error
}

// Open builds the store selected by cfg.Backend and loads persisted cursors.
// db is required for the database backend and ignored otherwise.
func Open(ctx context.Context, cfg config.CursorConfig, db database.DB) (Store, error) {
	switch cfg.Backend {
	case "", "database":
		if db == nil {
			return nil, fmt.Errorf("cursor backend %q needs a database", "database")
		}
		s := NewDBStore(db)
		if err := s.Load(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "file":
		return OpenFileStore(cfg.Path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported cursor backend %q (supported: database, file, memory)", cfg.Backend)
	}
}
