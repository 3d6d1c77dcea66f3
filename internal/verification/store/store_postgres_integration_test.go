//go:build integration

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
	"bountydesk/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	ctx   context.Context
	pg    *containers.PostgresContainer
	store *PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = NewPostgresStore(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateAll(s.ctx))
}

func (s *PostgresStoreSuite) newPending(kind models.Kind) *models.VerificationRecord {
	now := time.Now()
	return &models.VerificationRecord{
		PrincipalID: id.PrincipalID(uuid.New()),
		Kind:        kind,
		Status:      models.StatusPending,
		Evidence:    []id.DocumentRef{"doc://articles"},
		History: []models.Transition{
			{From: models.StatusUnverified, To: models.StatusPending, Actor: models.ActorRegistration, At: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *PostgresStoreSuite) TestCreateGetRoundTrip() {
	record := s.newPending(models.KindKYB)
	s.Require().NoError(s.store.Create(s.ctx, record))

	got, err := s.store.Get(s.ctx, record.PrincipalID, models.KindKYB)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)
	s.Equal(int64(1), got.Version)
	s.Require().Len(got.History, 1)
	s.Equal(models.ActorRegistration, got.History[0].Actor)
	s.Require().Len(got.Evidence, 1)
	s.Equal(id.DocumentRef("doc://articles"), got.Evidence[0])
}

func (s *PostgresStoreSuite) TestCreateDuplicateConflicts() {
	record := s.newPending(models.KindAccount)
	s.Require().NoError(s.store.Create(s.ctx, record))

	dup := s.newPending(models.KindAccount)
	dup.PrincipalID = record.PrincipalID
	s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestUpdateCommitsRecordAndHistoryAtomically() {
	record := s.newPending(models.KindAccount)
	s.Require().NoError(s.store.Create(s.ctx, record))

	got, err := s.store.Get(s.ctx, record.PrincipalID, models.KindAccount)
	s.Require().NoError(err)

	got.Status = models.StatusActive
	got.History = append(got.History, models.Transition{
		From: models.StatusPending, To: models.StatusActive,
		Actor: models.AdminActor(id.AdminID(uuid.New())), At: time.Now(),
	})
	s.Require().NoError(s.store.Update(s.ctx, got, got.Version))

	after, err := s.store.Get(s.ctx, record.PrincipalID, models.KindAccount)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, after.Status)
	s.Equal(int64(2), after.Version)
	s.Len(after.History, 2)
	s.Equal(after.Status, models.FoldStatus(after.History))
}

func (s *PostgresStoreSuite) TestUpdateStaleVersionConflicts() {
	record := s.newPending(models.KindAccount)
	s.Require().NoError(s.store.Create(s.ctx, record))

	got, err := s.store.Get(s.ctx, record.PrincipalID, models.KindAccount)
	s.Require().NoError(err)
	got.Status = models.StatusActive
	s.Require().NoError(s.store.Update(s.ctx, got, 1))

	stale := got.Clone()
	stale.Status = models.StatusRejected
	s.ErrorIs(s.store.Update(s.ctx, stale, 1), sentinel.ErrConflict)

	after, err := s.store.Get(s.ctx, record.PrincipalID, models.KindAccount)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, after.Status)
}

func (s *PostgresStoreSuite) TestConcurrentUpdatesExactlyOneWins() {
	record := s.newPending(models.KindAccount)
	s.Require().NoError(s.store.Create(s.ctx, record))

	base, err := s.store.Get(s.ctx, record.PrincipalID, models.KindAccount)
	s.Require().NoError(err)

	result := testutil.RunConcurrent(8, func(idx int) error {
		attempt := base.Clone()
		attempt.Status = models.StatusActive
		attempt.History = append(attempt.History, models.Transition{
			From: models.StatusPending, To: models.StatusActive, At: time.Now(),
		})
		return s.store.Update(s.ctx, attempt, 1)
	})

	s.Equal(int32(1), result.Successes)
	s.Equal(int32(7), result.Errors+result.Stale)

	after, err := s.store.Get(s.ctx, record.PrincipalID, models.KindAccount)
	s.Require().NoError(err)
	s.Equal(int64(2), after.Version)
	s.Len(after.History, 2)
}

func (s *PostgresStoreSuite) TestUpdateMissingRecordNotFound() {
	ghost := s.newPending(models.KindAccount)
	ghost.Version = 1
	s.ErrorIs(s.store.Update(s.ctx, ghost, 1), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListByStatus() {
	pending := s.newPending(models.KindKYB)
	s.Require().NoError(s.store.Create(s.ctx, pending))
	s.Require().NoError(s.store.Create(s.ctx, s.newPending(models.KindAccount)))

	records, err := s.store.ListByStatus(s.ctx, models.KindKYB, models.StatusPending)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(pending.PrincipalID, records[0].PrincipalID)
}
