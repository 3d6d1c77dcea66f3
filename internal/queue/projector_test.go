package queue

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"bountydesk/internal/audit"
	auditstore "bountydesk/internal/audit/store"
	"bountydesk/internal/intake"
	"bountydesk/internal/principal"
	"bountydesk/internal/verification"
	"bountydesk/internal/verification/models"
	"bountydesk/internal/verification/service"
	verificationstore "bountydesk/internal/verification/store"
	id "bountydesk/pkg/domain"
	dErrors "bountydesk/pkg/domain-errors"
)

type ProjectorSuite struct {
	suite.Suite
	ctx        context.Context
	records    *verificationstore.InMemoryStore
	principals *principal.InMemoryStore
	projector  *Projector
	verifier   *service.Service
	intake     *intake.Service
}

func TestProjectorSuite(t *testing.T) {
	suite.Run(t, new(ProjectorSuite))
}

func (s *ProjectorSuite) SetupTest() {
	s.ctx = context.Background()
	s.records = verificationstore.NewInMemoryStore()
	s.principals = principal.NewInMemoryStore()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.projector = NewProjector(s.records, s.principals, NewMemoryCache(), logger, nil)

	locks := verification.NewRecordLocks(5 * time.Second)
	auditor := audit.NewEmitter(auditstore.NewInMemoryStore(), logger, nil, 3)
	s.verifier = service.New(s.records, locks, auditor, nil, s.projector, logger, nil)
	s.intake = intake.New(s.records, locks, auditor, s.projector, logger)
}

func (s *ProjectorSuite) addPending(kind models.Kind, name string, pendingAt time.Time) id.PrincipalID {
	principalID := id.PrincipalID(uuid.New())

	pKind := principal.KindUser
	if kind == models.KindKYB {
		pKind = principal.KindCompany
	}
	s.Require().NoError(s.principals.Save(s.ctx, &principal.Principal{
		ID:        principalID,
		Kind:      pKind,
		Name:      name,
		Email:     name + "@example.com",
		CreatedAt: pendingAt,
	}))

	record := &models.VerificationRecord{
		PrincipalID: principalID,
		Kind:        kind,
		Status:      models.StatusPending,
		History: []models.Transition{
			{From: models.StatusUnverified, To: models.StatusPending, At: pendingAt},
		},
		CreatedAt: pendingAt,
		UpdatedAt: pendingAt,
	}
	s.Require().NoError(s.records.Create(s.ctx, record))
	return principalID
}

func (s *ProjectorSuite) TestListPendingOldestFirst() {
	base := time.Now().Add(-time.Hour)
	second := s.addPending(models.KindAccount, "second", base.Add(10*time.Minute))
	first := s.addPending(models.KindAccount, "first", base)
	third := s.addPending(models.KindAccount, "third", base.Add(20*time.Minute))

	items, err := s.projector.ListPending(s.ctx, models.KindAccount)
	s.Require().NoError(err)
	s.Require().Len(items, 3)
	s.Equal(first, items[0].PrincipalID)
	s.Equal(second, items[1].PrincipalID)
	s.Equal(third, items[2].PrincipalID)
}

func (s *ProjectorSuite) TestListPendingJoinsPrincipalMetadata() {
	s.addPending(models.KindKYB, "acme", time.Now())

	items, err := s.projector.ListPending(s.ctx, models.KindKYB)
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal("acme", items[0].Name)
	s.Equal("acme@example.com", items[0].Email)
}

func (s *ProjectorSuite) TestListPendingFiltersByKind() {
	s.addPending(models.KindAccount, "user", time.Now())
	s.addPending(models.KindKYB, "company", time.Now())

	items, err := s.projector.ListPending(s.ctx, models.KindAccount)
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal("user", items[0].Name)
}

func (s *ProjectorSuite) TestListPendingUnknownKind() {
	_, err := s.projector.ListPending(s.ctx, models.Kind("passport"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ProjectorSuite) TestMissingPrincipalMetadataDoesNotSinkQueue() {
	// A pending record without a directory entry still lists, blank metadata.
	principalID := id.PrincipalID(uuid.New())
	now := time.Now()
	s.Require().NoError(s.records.Create(s.ctx, &models.VerificationRecord{
		PrincipalID: principalID,
		Kind:        models.KindAccount,
		Status:      models.StatusPending,
		History: []models.Transition{
			{From: models.StatusUnverified, To: models.StatusPending, At: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}))

	items, err := s.projector.ListPending(s.ctx, models.KindAccount)
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Empty(items[0].Name)
}

// TestDecidedRecordDisappearsImmediately exercises the read-after-write
// guarantee: once a decision commits, the very next queue read no longer
// lists the record.
func (s *ProjectorSuite) TestDecidedRecordDisappearsImmediately() {
	target := s.addPending(models.KindAccount, "target", time.Now().Add(-time.Minute))
	other := s.addPending(models.KindAccount, "other", time.Now())

	items, err := s.projector.ListPending(s.ctx, models.KindAccount)
	s.Require().NoError(err)
	s.Require().Len(items, 2)

	_, err = s.verifier.Apply(s.ctx, models.Decision{
		PrincipalID: target,
		Kind:        models.KindAccount,
		Action:      models.ActionApprove,
		Actor:       id.AdminID(uuid.New()),
	})
	s.Require().NoError(err)

	items, err = s.projector.ListPending(s.ctx, models.KindAccount)
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal(other, items[0].PrincipalID)
}

// commitDuringList runs a callback once after the wrapped store read returns,
// before the projector gets to write its snapshot.
type commitDuringList struct {
	verification.Store
	once   sync.Once
	commit func()
}

func (c *commitDuringList) ListByStatus(ctx context.Context, kind models.Kind, status models.Status) ([]*models.VerificationRecord, error) {
	records, err := c.Store.ListByStatus(ctx, kind, status)
	c.once.Do(c.commit)
	return records, err
}

// A decision that commits between the projector's store read and its cache
// write retires the in-flight snapshot: the read after the commit must not
// list the decided record.
func (s *ProjectorSuite) TestCommitDuringProjectionDoesNotResurrectSnapshot() {
	target := s.addPending(models.KindAccount, "target", time.Now().Add(-time.Minute))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	wrapped := &commitDuringList{Store: s.records}
	projector := NewProjector(wrapped, s.principals, NewMemoryCache(), logger, nil)

	auditor := audit.NewEmitter(auditstore.NewInMemoryStore(), logger, nil, 3)
	verifier := service.New(s.records, verification.NewRecordLocks(5*time.Second), auditor, nil, projector, logger, nil)
	wrapped.commit = func() {
		_, err := verifier.Apply(s.ctx, models.Decision{
			PrincipalID: target,
			Kind:        models.KindAccount,
			Action:      models.ActionApprove,
			Actor:       id.AdminID(uuid.New()),
		})
		s.Require().NoError(err)
	}

	stale, err := projector.ListPending(s.ctx, models.KindAccount)
	s.Require().NoError(err)
	s.Require().Len(stale, 1)

	items, err := projector.ListPending(s.ctx, models.KindAccount)
	s.Require().NoError(err)
	s.Empty(items)
}

// A company attaches two documents, submits, and is rejected: the history
// carries the submission and the rejection, and the company leaves the review
// queue with the decision.
func (s *ProjectorSuite) TestRejectedCompanyDisappearsFromQueue() {
	companyID := id.PrincipalID(uuid.New())
	s.Require().NoError(s.principals.Save(s.ctx, &principal.Principal{
		ID:        companyID,
		Kind:      principal.KindCompany,
		Name:      "acme",
		Email:     "acme@example.com",
		CreatedAt: time.Now(),
	}))

	_, err := s.intake.Attach(s.ctx, companyID, "doc://registry-extract")
	s.Require().NoError(err)
	_, err = s.intake.Attach(s.ctx, companyID, "doc://tax-certificate")
	s.Require().NoError(err)
	_, err = s.intake.Submit(s.ctx, companyID)
	s.Require().NoError(err)

	items, err := s.projector.ListPending(s.ctx, models.KindKYB)
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal(companyID, items[0].PrincipalID)
	s.Equal(2, items[0].EvidenceCount)

	record, err := s.verifier.Apply(s.ctx, models.Decision{
		PrincipalID: companyID,
		Kind:        models.KindKYB,
		Action:      models.ActionReject,
		Actor:       id.AdminID(uuid.New()),
		Reason:      "registry extract does not match the company name",
	})
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, record.Status)
	s.Len(record.History, 2)

	items, err = s.projector.ListPending(s.ctx, models.KindKYB)
	s.Require().NoError(err)
	s.Empty(items)
}

func (s *ProjectorSuite) TestEmptyQueue() {
	items, err := s.projector.ListPending(s.ctx, models.KindKYB)
	s.Require().NoError(err)
	s.Empty(items)
}
