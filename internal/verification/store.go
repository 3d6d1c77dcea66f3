package verification

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store

import (
	"context"

	"bountydesk/internal/verification/models"
	id "bountydesk/pkg/domain"
)

// Store persists verification records. Implementations must write a record's
// status, evidence, and history atomically: a partially applied record is
// never observable, even across process crashes.
//
// Concurrency contract: Update is a compare-and-set on Version. A writer that
// read version N passes expectVersion=N; if another writer committed in
// between, the store returns sentinel.ErrConflict and nothing is written.
type Store interface {
	// Create inserts a new record. Returns sentinel.ErrConflict if a record
	// for (principal, kind) already exists; creation is idempotent at the
	// service layer, never duplicated at the store layer.
	Create(ctx context.Context, record *models.VerificationRecord) error

	// Get returns the record for (principal, kind), or sentinel.ErrNotFound.
	Get(ctx context.Context, principalID id.PrincipalID, kind models.Kind) (*models.VerificationRecord, error)

	// Update commits a full record snapshot iff the stored version equals
	// expectVersion, bumping Version by one. Returns sentinel.ErrConflict
	// when the compare-and-set loses.
	Update(ctx context.Context, record *models.VerificationRecord, expectVersion int64) error

	// ListByStatus returns all records of a kind in the given status.
	// Ordering is unspecified; the queue projector sorts by PENDING entry.
	ListByStatus(ctx context.Context, kind models.Kind, status models.Status) ([]*models.VerificationRecord, error)
}
