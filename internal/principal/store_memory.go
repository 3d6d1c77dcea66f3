package principal

import (
	"context"
	"strings"
	"sync"

	id "bountydesk/pkg/domain"
	"bountydesk/pkg/platform/sentinel"
)

// InMemoryStore keeps principals in a map; favors clarity over performance.
type InMemoryStore struct {
	mu         sync.RWMutex
	principals map[id.PrincipalID]*Principal
	byEmail    map[string]id.PrincipalID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		principals: make(map[id.PrincipalID]*Principal),
		byEmail:    make(map[string]id.PrincipalID),
	}
}

func (s *InMemoryStore) Save(_ context.Context, p *Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(p.Email)
	if existing, taken := s.byEmail[email]; taken && existing != p.ID {
		return sentinel.ErrConflict
	}

	cp := *p
	s.principals[p.ID] = &cp
	if email != "" {
		s.byEmail[email] = p.ID
	}
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, principalID id.PrincipalID) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.principals[principalID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Delete(_ context.Context, principalID id.PrincipalID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.principals[principalID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byEmail, strings.ToLower(p.Email))
	delete(s.principals, principalID)
	return nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if pid, ok := s.byEmail[strings.ToLower(email)]; ok {
		cp := *s.principals[pid]
		return &cp, nil
	}
	return nil, sentinel.ErrNotFound
}
