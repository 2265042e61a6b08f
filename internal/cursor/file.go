package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore persists cursors as a single JSON object on disk. Reads are
// served from memory; every Set rewrites the file atomically.
type FileStore struct {
	path  string
	cache MemoryStore

	writeMu sync.Mutex // serialises file rewrites only
	closed  bool
}

type fileRecord struct {
	Marker    string    `json:"marker"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OpenFileStore loads path if it exists. A missing file is an empty store.
func OpenFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("cursor file path is required")
	}
	s := &FileStore{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cursor file: %w", err)
	}

	var recs map[string]fileRecord
	if len(data) > 0 {
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, fmt.Errorf("parsing cursor file %s: %w", path, err)
		}
	}
	for k, r := range recs {
		s.cache.m.Store(k, Entry{Key: k, Marker: r.Marker, UpdatedAt: r.UpdatedAt})
	}
	return s, nil
}

func (s *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	return s.cache.Get(ctx, key)
}

func (s *FileStore) Set(_ context.Context, key, marker string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	e := Entry{Key: key, Marker: marker, UpdatedAt: time.Now().UTC()}
	snap := s.snapshot()
	snap[key] = fileRecord{Marker: e.Marker, UpdatedAt: e.UpdatedAt}
	if err := s.write(snap); err != nil {
		return fmt.Errorf("writing cursor %q: %w", key, err)
	}
	s.cache.m.Store(key, e)
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	snap := s.snapshot()
	delete(snap, key)
	if err := s.write(snap); err != nil {
		return fmt.Errorf("deleting cursor %q: %w", key, err)
	}
	s.cache.m.Delete(key)
	return nil
}

func (s *FileStore) List(ctx context.Context) ([]Entry, error) {
	return s.cache.List(ctx)
}

// Close writes the current state one last time.
func (s *FileStore) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.write(s.snapshot())
}

func (s *FileStore) snapshot() map[string]fileRecord {
	out := map[string]fileRecord{}
	s.cache.m.Range(func(k, v any) bool {
		e := v.(Entry)
		out[k.(string)] = fileRecord{Marker: e.Marker, UpdatedAt: e.UpdatedAt}
		return true
	})
	return out
}

// write replaces the file via a temp file + rename so a crash never leaves a
// truncated cursor file behind.
func (s *FileStore) write(recs map[string]fileRecord) error {
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cursors-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
