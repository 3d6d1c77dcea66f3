package store

import (
	"context"
	"sort"
	"sync"

	"bountydesk/internal/audit"
	"bountydesk/internal/verification/models"
	id "bountydesk/pkg/domain"
)

// InMemoryStore is an append-only in-memory audit log for tests and local
// development. Entries are never mutated or deleted.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) ListByPrincipal(_ context.Context, principalID id.PrincipalID, kind models.Kind) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Entry
	for _, entry := range s.entries {
		if entry.PrincipalID == principalID && entry.Kind == kind {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Len reports the total number of entries; used by tests to assert
// exactly-once emission.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
