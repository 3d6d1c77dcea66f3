package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bountydesk/internal/verification/models"
	id "bountydesk/pkg/domain"
	"bountydesk/pkg/platform/sentinel"
	"bountydesk/pkg/testutil"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) newPending(kind models.Kind) *models.VerificationRecord {
	now := time.Now()
	return &models.VerificationRecord{
		PrincipalID: id.PrincipalID(uuid.New()),
		Kind:        kind,
		Status:      models.StatusPending,
		History: []models.Transition{
			{From: models.StatusUnverified, To: models.StatusPending, Actor: models.ActorRegistration, At: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *InMemoryStoreSuite) TestCreateAndGet() {
	record := s.newPending(models.KindAccount)
	s.Require().NoError(s.store.Create(s.ctx, record))

	got, err := s.store.Get(s.ctx, record.PrincipalID, models.KindAccount)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)
	s.Equal(int64(1), got.Version)
	s.Len(got.History, 1)
}

func (s *InMemoryStoreSuite) TestCreateDuplicateConflicts() {
	record := s.newPending(models.KindAccount)
	s.Require().NoError(s.store.Create(s.ctx, record))
	s.ErrorIs(s.store.Create(s.ctx, s.newPendingFor(record.PrincipalID, models.KindAccount)), sentinel.ErrConflict)
}

func (s *InMemoryStoreSuite) TestSameKindDifferentPrincipalsCoexist() {
	s.Require().NoError(s.store.Create(s.ctx, s.newPending(models.KindKYB)))
	s.Require().NoError(s.store.Create(s.ctx, s.newPending(models.KindKYB)))
}

func (s *InMemoryStoreSuite) TestSamePrincipalBothKindsCoexist() {
	record := s.newPending(models.KindAccount)
	s.Require().NoError(s.store.Create(s.ctx, record))
	s.Require().NoError(s.store.Create(s.ctx, s.newPendingFor(record.PrincipalID, models.KindKYB)))
}

func (s *InMemoryStoreSuite) TestGetUnknownNotFound() {
	_, err := s.store.Get(s.ctx, id.PrincipalID(uuid.New()), models.KindAccount)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestUpdateBumpsVersion() {
	record := s.newPending(models.KindAccount)
	s.Require().NoError(s.store.Create(s.ctx, record))

	got, err := s.store.Get(s.ctx, record.PrincipalID, models.KindAccount)
	s.Require().NoError(err)

	got.Status = models.StatusActive
	got.History = append(got.History, models.Transition{
		From: models.StatusPending, To: models.StatusActive, At: time.Now(),
	})
	s.Require().NoError(s.store.Update(s.ctx, got, got.Version))

	after, err := s.store.Get(s.ctx, record.PrincipalID, models.KindAccount)
	s.Require().NoError(err)
	s.Equal(int64(2), after.Version)
	s.Equal(models.StatusActive, after.Status)
	s.Len(after.History, 2)
}

func (s *InMemoryStoreSuite) TestUpdateStaleVersionConflicts() {
	record := s.newPending(models.KindAccount)
	s.Require().NoError(s.store.Create(s.ctx, record))

	first, err := s.store.Get(s.ctx, record.PrincipalID, models.KindAccount)
	s.Require().NoError(err)
	second, err := s.store.Get(s.ctx, record.PrincipalID, models.KindAccount)
	s.Require().NoError(err)

	first.Status = models.StatusActive
	s.Require().NoError(s.store.Update(s.ctx, first, first.Version))

	second.Status = models.StatusRejected
	s.ErrorIs(s.store.Update(s.ctx, second, second.Version), sentinel.ErrConflict)

	// The losing write left nothing behind.
	after, err := s.store.Get(s.ctx, record.PrincipalID, models.KindAccount)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, after.Status)
}

func (s *InMemoryStoreSuite) TestConcurrentUpdatesExactlyOneWins() {
	record := s.newPending(models.KindAccount)
	s.Require().NoError(s.store.Create(s.ctx, record))

	result := testutil.RunConcurrent(16, func(idx int) error {
		snapshot := record.Clone()
		snapshot.Version = 1
		snapshot.Status = models.StatusActive
		return s.store.Update(s.ctx, snapshot, 1)
	})

	s.Equal(int32(1), result.Successes)
	s.Equal(int32(15), result.Errors+result.Stale)
}

func (s *InMemoryStoreSuite) TestListByStatus() {
	pending := s.newPending(models.KindKYB)
	s.Require().NoError(s.store.Create(s.ctx, pending))

	other := s.newPending(models.KindAccount)
	s.Require().NoError(s.store.Create(s.ctx, other))

	records, err := s.store.ListByStatus(s.ctx, models.KindKYB, models.StatusPending)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(pending.PrincipalID, records[0].PrincipalID)
}

func (s *InMemoryStoreSuite) TestGetReturnsCopy() {
	record := s.newPending(models.KindAccount)
	s.Require().NoError(s.store.Create(s.ctx, record))

	got, err := s.store.Get(s.ctx, record.PrincipalID, models.KindAccount)
	s.Require().NoError(err)
	got.Status = models.StatusRejected
	got.History[0].Note = "mutated"

	fresh, err := s.store.Get(s.ctx, record.PrincipalID, models.KindAccount)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, fresh.Status)
	s.Empty(fresh.History[0].Note)
}

func (s *InMemoryStoreSuite) newPendingFor(principalID id.PrincipalID, kind models.Kind) *models.VerificationRecord {
	record := s.newPending(kind)
	record.PrincipalID = principalID
	return record
}
