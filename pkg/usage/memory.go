package usage

import (
	"context"
	"sort"
	"sync"
)

type pairKey struct {
	credential string
	resource   string
}

// MemoryStore keeps counters in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	counters map[pairKey]Counter
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[pairKey]Counter)}
}

func (s *MemoryStore) Get(_ context.Context, credentialID, resourceID string) (Counter, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.counters[pairKey{credentialID, resourceID}]
	return c, ok, nil
}

func (s *MemoryStore) Upsert(_ context.Context, c Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[pairKey{c.CredentialID, c.ResourceID}] = c
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Counter, error) {
	s.mu.RLock()
	out := make([]Counter, 0, len(s.counters))
	for _, c := range s.counters {
		out = append(out, c)
	}
	s.mu.RUnlock()

	sortCounters(out)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func sortCounters(cs []Counter) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].ResourceID != cs[j].ResourceID {
			return cs[i].ResourceID < cs[j].ResourceID
		}
		return cs[i].CredentialID < cs[j].CredentialID
	})
}

var _ Store = (*MemoryStore)(nil)
