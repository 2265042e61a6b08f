package cursor

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps cursors in process memory only. Selected by the
// "memory" backend; every restart bootstraps each feed again.
type MemoryStore struct {
	m sync.Map // key -> Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.m.Load(key)
	if !ok {
		return "", false, nil
	}
	return v.(Entry).Marker, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, marker string) error {
	s.m.Store(key, Entry{Key: key, Marker: marker, UpdatedAt: time.Now().UTC()})
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.m.Delete(key)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Entry, error) {
	var out []Entry
	s.m.Range(func(_, v any) bool {
		out = append(out, v.(Entry))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
