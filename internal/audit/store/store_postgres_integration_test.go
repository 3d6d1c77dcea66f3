//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bountydesk/internal/audit"
	"bountydesk/internal/verification/models"
	id "bountydesk/pkg/domain"
	"bountydesk/pkg/testutil/containers"
)

type PostgresAuditSuite struct {
	suite.Suite
	ctx   context.Context
	pg    *containers.PostgresContainer
	store *PostgresStore
}

func TestPostgresAuditSuite(t *testing.T) {
	suite.Run(t, new(PostgresAuditSuite))
}

func (s *PostgresAuditSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = NewPostgresStore(s.pg.DB)
}

func (s *PostgresAuditSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateAll(s.ctx))
}

func (s *PostgresAuditSuite) entry(principalID id.PrincipalID, seq int) audit.Entry {
	return audit.Entry{
		ID:          uuid.New(),
		PrincipalID: principalID,
		Kind:        models.KindAccount,
		Seq:         seq,
		FromStatus:  models.StatusPending,
		ToStatus:    models.StatusActive,
		Actor:       models.Actor(uuid.NewString()),
		At:          time.Now(),
	}
}

func (s *PostgresAuditSuite) TestAppendAndList() {
	principalID := id.PrincipalID(uuid.New())
	s.Require().NoError(s.store.Append(s.ctx, s.entry(principalID, 0)))
	s.Require().NoError(s.store.Append(s.ctx, s.entry(principalID, 1)))

	entries, err := s.store.ListByPrincipal(s.ctx, principalID, models.KindAccount)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(0, entries[0].Seq)
	s.Equal(1, entries[1].Seq)
}

// TestAppendIdempotentPerSeq covers the retry path: a retried append for the
// same (principal, kind, seq) lands once, never twice.
func (s *PostgresAuditSuite) TestAppendIdempotentPerSeq() {
	principalID := id.PrincipalID(uuid.New())
	s.Require().NoError(s.store.Append(s.ctx, s.entry(principalID, 0)))
	s.Require().NoError(s.store.Append(s.ctx, s.entry(principalID, 0)))

	entries, err := s.store.ListByPrincipal(s.ctx, principalID, models.KindAccount)
	s.Require().NoError(err)
	s.Len(entries, 1)
}
