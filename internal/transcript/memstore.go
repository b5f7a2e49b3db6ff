package transcript

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// MemStore is an in-process [Store] for tests and single-node use. Search is
// a case-insensitive substring match rather than full-text search.
type MemStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Append implements [Store].
func (s *MemStore) Append(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// List implements [Store].
func (s *MemStore) List(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Search implements [Store].
func (s *MemStore) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	var out []Entry
	for _, e := range s.entries {
		if strings.Contains(strings.ToLower(e.Text), needle) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close implements [Store]. It discards all entries.
func (s *MemStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}
