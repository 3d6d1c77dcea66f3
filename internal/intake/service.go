// Package intake is the KYB document intake adapter: companies attach
// evidence documents and submit the set for review. It writes evidence and
// the submission transition; decisions stay with the verification service.
package intake

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"bountydesk/internal/audit"
	"bountydesk/internal/verification"
	"bountydesk/internal/verification/models"
	"bountydesk/internal/verification/service"
	id "bountydesk/pkg/domain"
	dErrors "bountydesk/pkg/domain-errors"
	"bountydesk/pkg/platform/sentinel"
)

// Service handles KYB evidence and submissions. All writes go through the
// same per-record locks and version compare-and-set as decisions, so an
// attach racing a decision loses cleanly with stale_state.
type Service struct {
	store       verification.Store
	locks       *verification.RecordLocks
	auditor     service.Auditor
	invalidator service.Invalidator
	logger      *slog.Logger
}

func New(store verification.Store, locks *verification.RecordLocks, auditor service.Auditor, invalidator service.Invalidator, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		locks:       locks,
		auditor:     auditor,
		invalidator: invalidator,
		logger:      logger,
	}
}

// Attach adds a document reference to a company's KYB evidence. The record is
// created on first attach. Attaching to a REJECTED record whose evidence
// predates the rejection discards the refused set and starts a fresh one.
//
// Evidence is immutable once submitted: attaching while the record is PENDING
// or decided approved is an invalid transition.
func (s *Service) Attach(ctx context.Context, principalID id.PrincipalID, ref id.DocumentRef) (*models.VerificationRecord, error) {
	if principalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "principal ID is required")
	}
	if ref == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "document reference is required")
	}

	var record *models.VerificationRecord
	err := s.locks.Do(ctx, principalID, models.KindKYB, func(ctx context.Context) error {
		current, err := s.store.Get(ctx, principalID, models.KindKYB)
		if errors.Is(err, sentinel.ErrNotFound) {
			created, cerr := s.createWithEvidence(ctx, principalID, ref)
			if cerr != nil {
				return cerr
			}
			record = created
			return nil
		}
		if err != nil {
			return translateStoreErr(err)
		}

		if !verification.CanAttachEvidence(current.Status) {
			return dErrors.New(dErrors.CodeInvalidTransition,
				"evidence is immutable while status is "+string(current.Status))
		}

		if current.Status == models.StatusRejected {
			if rejectedAt, ok := lastRejection(current.History); ok && !current.EvidenceUpdatedAt.After(rejectedAt) {
				current.Evidence = nil
			}
		}

		current.Evidence = appendRef(current.Evidence, ref)
		current.EvidenceUpdatedAt = time.Now()

		if err := s.store.Update(ctx, current, current.Version); err != nil {
			return translateStoreErr(err)
		}
		record = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Submit finalizes the evidence set and moves the record into review. The
// resulting PENDING entry anchors the record's position in the review queue.
func (s *Service) Submit(ctx context.Context, principalID id.PrincipalID) (*models.VerificationRecord, error) {
	if principalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "principal ID is required")
	}

	var record *models.VerificationRecord
	err := s.locks.Do(ctx, principalID, models.KindKYB, func(ctx context.Context) error {
		current, err := s.store.Get(ctx, principalID, models.KindKYB)
		if err != nil {
			return translateStoreErr(err)
		}

		if err := verification.CanSubmit(current.Status); err != nil {
			return err
		}
		if len(current.Evidence) == 0 {
			return dErrors.New(dErrors.CodeEmptyEvidence, "cannot submit without evidence documents")
		}
		if current.Status == models.StatusRejected {
			if rejectedAt, ok := lastRejection(current.History); ok && !current.EvidenceUpdatedAt.After(rejectedAt) {
				return dErrors.New(dErrors.CodeEmptyEvidence,
					"resubmission requires fresh evidence attached after the rejection")
			}
		}

		transition := models.Transition{
			From:  current.Status,
			To:    models.StatusPending,
			Actor: models.ActorIntake,
			At:    time.Now(),
		}
		current.Status = models.StatusPending
		current.History = append(current.History, transition)

		if err := s.store.Update(ctx, current, current.Version); err != nil {
			return translateStoreErr(err)
		}
		record = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterSubmit(ctx, record)
	return record, nil
}

// Record returns the company's KYB record, evidence included, for the
// self-service status view.
func (s *Service) Record(ctx context.Context, principalID id.PrincipalID) (*models.VerificationRecord, error) {
	if principalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "principal ID is required")
	}
	record, err := s.store.Get(ctx, principalID, models.KindKYB)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return record, nil
}

func (s *Service) createWithEvidence(ctx context.Context, principalID id.PrincipalID, ref id.DocumentRef) (*models.VerificationRecord, error) {
	now := time.Now()
	record := &models.VerificationRecord{
		PrincipalID:       principalID,
		Kind:              models.KindKYB,
		Status:            models.StatusUnverified,
		Evidence:          []id.DocumentRef{ref},
		EvidenceUpdatedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.Create(ctx, record); err != nil {
		// Lost a create race outside this process; the caller retries.
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeStaleState, "record was created concurrently")
		}
		return nil, translateStoreErr(err)
	}
	return record, nil
}

func (s *Service) afterSubmit(ctx context.Context, record *models.VerificationRecord) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, record.Kind)
	}

	seq := len(record.History) - 1
	entry := audit.FromTransition(record, seq, record.History[seq])

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.auditor.Emit(auditCtx, entry); err != nil {
		s.logger.ErrorContext(ctx, "submission committed but audit entry not durable",
			"principal_id", record.PrincipalID.String(),
			"error", err,
		)
	}

	s.logger.InfoContext(ctx, "kyb submission entered review",
		"principal_id", record.PrincipalID.String(),
		"evidence_count", len(record.Evidence),
	)
}

// lastRejection returns the timestamp of the most recent REJECTED entry.
func lastRejection(history []models.Transition) (time.Time, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].To == models.StatusRejected {
			return history[i].At, true
		}
	}
	return time.Time{}, false
}

func appendRef(refs []id.DocumentRef, ref id.DocumentRef) []id.DocumentRef {
	for _, existing := range refs {
		if existing == ref {
			return refs
		}
	}
	return append(refs, ref)
}

func translateStoreErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "no KYB record for principal")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeStaleState, "record changed concurrently, re-fetch before retrying")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "store operation timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "record store unavailable")
	}
}
