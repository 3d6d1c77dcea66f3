package store

import (
	"context"
	"sync"
	"time"

	"bountydesk/internal/verification/models"
	id "bountydesk/pkg/domain"
	"bountydesk/pkg/platform/sentinel"
)

// InMemoryStore keeps verification records in a map. It intentionally favors
// clarity over performance; the production deployment uses PostgresStore.
// Records are deep-copied on the way in and out so callers never share state
// with the store.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.VerificationRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*models.VerificationRecord)}
}

func recordKey(principalID id.PrincipalID, kind models.Kind) string {
	return principalID.String() + "/" + string(kind)
}

func (s *InMemoryStore) Create(_ context.Context, record *models.VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(record.PrincipalID, record.Kind)
	if _, exists := s.records[key]; exists {
		return sentinel.ErrConflict
	}

	cp := record.Clone()
	if cp.Version == 0 {
		cp.Version = 1
	}
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.records[key] = cp

	record.Version = cp.Version
	record.CreatedAt = cp.CreatedAt
	record.UpdatedAt = cp.UpdatedAt
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, principalID id.PrincipalID, kind models.Kind) (*models.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if record, ok := s.records[recordKey(principalID, kind)]; ok {
		return record.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Update(_ context.Context, record *models.VerificationRecord, expectVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(record.PrincipalID, record.Kind)
	current, ok := s.records[key]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != expectVersion {
		return sentinel.ErrConflict
	}

	cp := record.Clone()
	cp.Version = expectVersion + 1
	cp.CreatedAt = current.CreatedAt
	cp.UpdatedAt = time.Now()
	s.records[key] = cp

	record.Version = cp.Version
	record.UpdatedAt = cp.UpdatedAt
	return nil
}

func (s *InMemoryStore) ListByStatus(_ context.Context, kind models.Kind, status models.Status) ([]*models.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.VerificationRecord
	for _, record := range s.records {
		if record.Kind == kind && record.Status == status {
			out = append(out, record.Clone())
		}
	}
	return out, nil
}
