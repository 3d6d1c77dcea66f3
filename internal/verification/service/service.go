// Package service implements the decision engine: it validates a requested
// transition against the current record, applies it exactly once, and emits
// the resulting audit entry and notification event.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bountydesk/internal/audit"
	"bountydesk/internal/platform/metrics"
	"bountydesk/internal/platform/middleware"
	"bountydesk/internal/verification"
	"bountydesk/internal/verification/models"
	id "bountydesk/pkg/domain"
	dErrors "bountydesk/pkg/domain-errors"
	"bountydesk/pkg/platform/sentinel"
)

// Auditor appends audit entries for committed transitions and serves the
// audit-trace view. Emit must retry until durable before returning.
type Auditor interface {
	Emit(ctx context.Context, entry audit.Entry) error
	List(ctx context.Context, principalID id.PrincipalID, kind models.Kind) ([]audit.Entry, error)
}

// Notifier receives decision-committed events; delivery is fire-and-forget.
type Notifier interface {
	DecisionCommitted(principalID id.PrincipalID, kind models.Kind, outcome models.Status, actor models.Actor, at time.Time)
}

// Invalidator drops any cached queue projection for a kind. Called inside the
// commit path, before Apply returns, so listPending never shows a decided
// record.
type Invalidator interface {
	Invalidate(ctx context.Context, kind models.Kind)
}

// Service is the decision engine. It exclusively owns writes to a record's
// status and history; evidence writes belong to the intake adapter.
type Service struct {
	store       verification.Store
	locks       *verification.RecordLocks
	auditor     Auditor
	notifier    Notifier
	invalidator Invalidator
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

// New wires the decision engine. notifier, invalidator, and metrics may be
// nil in tests.
func New(store verification.Store, locks *verification.RecordLocks, auditor Auditor, notifier Notifier, invalidator Invalidator, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:       store,
		locks:       locks,
		auditor:     auditor,
		notifier:    notifier,
		invalidator: invalidator,
		logger:      logger,
		metrics:     m,
		tracer:      otel.Tracer("bountydesk/verification"),
	}
}

// Apply commits a decision on a PENDING record. At most one decision is ever
// committed per record: the per-record lock serializes in-process callers and
// the store's version compare-and-set catches everything else, surfacing the
// loser as stale_state.
//
// On success exactly one audit entry has been durably appended (or its loss
// escalated to alerting) and the decision event is queued for notification.
func (s *Service) Apply(ctx context.Context, decision models.Decision) (*models.VerificationRecord, error) {
	if decision.PrincipalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "principal ID is required")
	}
	if !decision.Kind.Valid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown verification kind")
	}
	if !decision.Action.Valid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "action must be APPROVE or REJECT")
	}
	if decision.Actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "decision actor is required")
	}

	ctx, span := s.tracer.Start(ctx, "verification.Apply",
		trace.WithAttributes(
			attribute.String("verification.kind", string(decision.Kind)),
			attribute.String("verification.action", string(decision.Action)),
		))
	defer span.End()

	start := time.Now()
	var record *models.VerificationRecord

	err := s.locks.Do(ctx, decision.PrincipalID, decision.Kind, func(ctx context.Context) error {
		current, err := s.store.Get(ctx, decision.PrincipalID, decision.Kind)
		if err != nil {
			return translateStoreErr(err, "verification record not found")
		}

		next, err := verification.NextStatus(decision.Kind, current.Status, decision.Action)
		if err != nil {
			return err
		}

		transition := models.Transition{
			From:  current.Status,
			To:    next,
			Actor: models.AdminActor(decision.Actor),
			At:    time.Now(),
			Note:  decision.Reason,
		}
		current.Status = next
		current.History = append(current.History, transition)

		if err := s.store.Update(ctx, current, current.Version); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				if s.metrics != nil {
					s.metrics.IncStaleState()
				}
				return dErrors.Wrap(err, dErrors.CodeStaleState,
					"record was decided concurrently, re-fetch before retrying")
			}
			return translateStoreErr(err, "verification record not found")
		}

		record = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, record, decision)

	if s.metrics != nil {
		s.metrics.ObserveDecision(string(decision.Kind), string(record.Status), time.Since(start).Seconds())
	}
	return record, nil
}

// afterCommit runs the post-commit obligations: projection invalidation,
// durable audit append, notification event. The transition is already the
// source of truth; none of these may undo it.
func (s *Service) afterCommit(ctx context.Context, record *models.VerificationRecord, decision models.Decision) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, record.Kind)
	}

	seq := len(record.History) - 1
	transition := record.History[seq]

	entry := audit.FromTransition(record, seq, transition)
	entry.RequestID = middleware.GetRequestID(ctx)
	entry.ActorDevice = audit.DeviceSummary(middleware.GetUserAgent(ctx))

	// Audit append detaches from the request deadline: the decision is
	// committed and the retries must get their full budget.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.auditor.Emit(auditCtx, entry); err != nil {
		// Already counted and logged by the emitter; recorded here with the
		// decision context for the operator.
		s.logger.ErrorContext(ctx, "decision committed but audit entry not durable",
			"principal_id", record.PrincipalID.String(),
			"kind", string(record.Kind),
			"outcome", string(record.Status),
			"error", err,
		)
	}

	if s.notifier != nil {
		s.notifier.DecisionCommitted(record.PrincipalID, record.Kind, record.Status, transition.Actor, transition.At)
	}

	s.logger.InfoContext(ctx, "decision committed",
		"principal_id", record.PrincipalID.String(),
		"kind", string(record.Kind),
		"action", string(decision.Action),
		"outcome", string(record.Status),
		"actor", decision.Actor.String(),
	)
}

// CurrentStatus is the read-only query the session/authorization service uses
// to gate login and privileged actions.
func (s *Service) CurrentStatus(ctx context.Context, principalID id.PrincipalID, kind models.Kind) (models.Status, error) {
	if principalID.IsNil() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal ID is required")
	}
	if !kind.Valid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown verification kind")
	}

	record, err := s.store.Get(ctx, principalID, kind)
	if err != nil {
		return "", translateStoreErr(err, "verification record not found")
	}
	return record.Status, nil
}

// History returns the audit trail for the audit-trace view.
func (s *Service) History(ctx context.Context, principalID id.PrincipalID, kind models.Kind) ([]audit.Entry, error) {
	if principalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "principal ID is required")
	}
	if !kind.Valid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown verification kind")
	}
	return s.auditor.List(ctx, principalID, kind)
}

// translateStoreErr maps infrastructure sentinels onto the engine's error
// taxonomy. Unknown store failures become store_unavailable: fatal for the
// operation, never partially applied.
func translateStoreErr(err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, notFoundMsg)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "store operation timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "record store unavailable")
	}
}
