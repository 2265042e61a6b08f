package cursor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/CosmoTheDev/repowatch/internal/config"
	"github.com/CosmoTheDev/repowatch/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory builds a fresh store; reopen builds a second instance over the
// same persisted state (nil for non-durable stores).
type storeFactory struct {
	name string
	open func(t *testing.T) (Store, func() Store)
}

func factories() []storeFactory {
	return []storeFactory{
		{"memory", func(t *testing.T) (Store, func() Store) {
			return NewMemoryStore(), nil
		}},
		{"file", func(t *testing.T) (Store, func() Store) {
			path := filepath.Join(t.TempDir(), "cursors.json")
			s, err := OpenFileStore(path)
			require.NoError(t, err)
			return s, func() Store {
				r, err := OpenFileStore(path)
				require.NoError(t, err)
				return r
			}
		}},
		{"database", func(t *testing.T) (Store, func() Store) {
			db, err := database.Open(context.Background(), config.DatabaseConfig{
				Path: filepath.Join(t.TempDir(), "c.db"),
			})
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			s, err := Open(context.Background(), config.CursorConfig{Backend: "database"}, db)
			require.NoError(t, err)
			return s, func() Store {
				r, err := Open(context.Background(), config.CursorConfig{Backend: "database"}, db)
				require.NoError(t, err)
				return r
			}
		}},
	}
}

func TestStoreGetSetDelete(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			s, _ := f.open(t)

			_, ok, err := s.Get(ctx, "owner/repo")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, "owner/repo", "42"))
			require.NoError(t, s.Set(ctx, "owner/repo:actions", "7"))

			m, ok, err := s.Get(ctx, "owner/repo")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "42", m)

			entries, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, "owner/repo", entries[0].Key)
			assert.Equal(t, "owner/repo:actions", entries[1].Key)

			require.NoError(t, s.Delete(ctx, "owner/repo"))
			_, ok, err = s.Get(ctx, "owner/repo")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			s, reopen := f.open(t)
			if reopen == nil {
				t.Skip("store is not durable")
			}
			require.NoError(t, s.Set(ctx, "a/b", "100"))
			require.NoError(t, s.Close())

			r := reopen()
			m, ok, err := r.Get(ctx, "a/b")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "100", m)
		})
	}
}

func TestStoreConcurrentKeys(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			s, _ := f.open(t)

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					key := fmt.Sprintf("org/repo-%d", i)
					for j := 0; j < 5; j++ {
						assert.NoError(t, s.Set(ctx, key, fmt.Sprint(j)))
					}
				}(i)
			}
			wg.Wait()

			for i := 0; i < 8; i++ {
				m, ok, err := s.Get(ctx, fmt.Sprintf("org/repo-%d", i))
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, "4", m)
			}
		})
	}
}

func TestFileStoreFailedWriteKeepsPreviousMarker(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "cursors.json")
	s, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "a/b", "1"))

	// make the directory unwritable so the rename target cannot be replaced
	require.NoError(t, os.Chmod(filepath.Dir(path), 0o500))
	t.Cleanup(func() { _ = os.Chmod(filepath.Dir(path), 0o700) })
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	err = s.Set(ctx, "a/b", "2")
	require.Error(t, err)
	m, _, _ := s.Get(ctx, "a/b")
	assert.Equal(t, "1", m)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursors.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := OpenFileStore(path)
	assert.Error(t, err)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.CursorConfig{Backend: "redis"}, nil)
	assert.Error(t, err)
}
