package audit

//go:generate mockgen -source=emitter.go -destination=mocks/mocks.go -package=mocks Store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bountydesk/internal/platform/metrics"
	"bountydesk/internal/verification/models"
	id "bountydesk/pkg/domain"
)

// Store is the append-only audit log. Appends for different records may land
// in any order; appends for the same record must preserve the order of the
// corresponding committed transitions (Seq enforces this).
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByPrincipal(ctx context.Context, principalID id.PrincipalID, kind models.Kind) ([]Entry, error)
}

// Emitter appends audit entries with bounded retry. The committed transition
// is the source of truth: an exhausted retry budget is logged and counted for
// alerting but never rolls the transition back.
type Emitter struct {
	store    Store
	logger   *slog.Logger
	metrics  *metrics.Metrics
	retryMax int
	backoff  time.Duration
}

// NewEmitter creates an audit emitter. retryMax <= 0 selects a default of 5
// attempts; backoff doubles per attempt from 50ms.
func NewEmitter(store Store, logger *slog.Logger, m *metrics.Metrics, retryMax int) *Emitter {
	if retryMax <= 0 {
		retryMax = 5
	}
	return &Emitter{
		store:    store,
		logger:   logger,
		metrics:  m,
		retryMax: retryMax,
		backoff:  50 * time.Millisecond,
	}
}

// Emit appends the entry, retrying with capped exponential backoff until it
// is durable or the budget is exhausted. Returns the last append error on
// exhaustion so the caller can escalate; callers must not fail the committed
// decision on it.
func (e *Emitter) Emit(ctx context.Context, entry Entry) error {
	var lastErr error
	delay := e.backoff

	for attempt := 0; attempt < e.retryMax; attempt++ {
		if attempt > 0 {
			if e.metrics != nil {
				e.metrics.IncAuditRetry()
			}
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				return e.exhausted(ctx, entry, lastErr)
			case <-time.After(delay):
			}
			if delay < time.Second {
				delay *= 2
			}
		}

		if lastErr = e.store.Append(ctx, entry); lastErr == nil {
			return nil
		}

		if e.logger != nil {
			e.logger.WarnContext(ctx, "audit append failed",
				"principal_id", entry.PrincipalID.String(),
				"kind", string(entry.Kind),
				"seq", entry.Seq,
				"attempt", attempt+1,
				"error", lastErr,
			)
		}
	}

	return e.exhausted(ctx, entry, lastErr)
}

func (e *Emitter) exhausted(ctx context.Context, entry Entry, lastErr error) error {
	if e.metrics != nil {
		e.metrics.IncAuditExhausted()
	}
	if e.logger != nil {
		e.logger.ErrorContext(ctx, "audit append exhausted retries, entry lost unless replayed",
			"principal_id", entry.PrincipalID.String(),
			"kind", string(entry.Kind),
			"seq", entry.Seq,
			"error", lastErr,
		)
	}
	return fmt.Errorf("audit append exhausted retries: %w", lastErr)
}

// List returns the audit trail for one (principal, kind) in commit order.
func (e *Emitter) List(ctx context.Context, principalID id.PrincipalID, kind models.Kind) ([]Entry, error) {
	return e.store.ListByPrincipal(ctx, principalID, kind)
}
