// Package registration onboards principals. A new user lands directly in the
// account review queue; a new company gets its KYB record lazily on first
// document attach.
package registration

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"bountydesk/internal/audit"
	"bountydesk/internal/platform/metrics"
	"bountydesk/internal/principal"
	"bountydesk/internal/verification"
	"bountydesk/internal/verification/models"
	"bountydesk/internal/verification/service"
	id "bountydesk/pkg/domain"
	dErrors "bountydesk/pkg/domain-errors"
	"bountydesk/pkg/platform/sentinel"
)

type Service struct {
	principals  principal.Store
	records     verification.Store
	auditor     service.Auditor
	invalidator service.Invalidator
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func New(principals principal.Store, records verification.Store, auditor service.Auditor, invalidator service.Invalidator, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		principals:  principals,
		records:     records,
		auditor:     auditor,
		invalidator: invalidator,
		logger:      logger,
		metrics:     m,
	}
}

// Register creates a USER principal and its account verification record.
// Registration doubles as the submission step: the record enters PENDING
// immediately and the user waits for an activation decision.
func (s *Service) Register(ctx context.Context, email, name, password string) (*principal.Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a valid email is required")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "name is required")
	}
	if len(password) < 8 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	p := &principal.Principal{
		ID:           id.PrincipalID(uuid.New()),
		Kind:         principal.KindUser,
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := s.principals.Save(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "email is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "principal directory unavailable")
	}

	if err := s.createPendingAccount(ctx, p.ID); err != nil {
		s.rollbackPrincipal(ctx, p.ID)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RegistrationsTotal.Inc()
	}
	s.logger.InfoContext(ctx, "user registered, account pending activation",
		"principal_id", p.ID.String(),
	)
	return p, nil
}

// RegisterCompany creates a COMPANY principal. Its account record enters the
// activation queue like a user's; the KYB record is created by the intake
// adapter on first document attach.
func (s *Service) RegisterCompany(ctx context.Context, email, name, password string) (*principal.Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a valid email is required")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "company name is required")
	}
	if len(password) < 8 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	p := &principal.Principal{
		ID:           id.PrincipalID(uuid.New()),
		Kind:         principal.KindCompany,
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := s.principals.Save(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "email is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "principal directory unavailable")
	}

	if err := s.createPendingAccount(ctx, p.ID); err != nil {
		s.rollbackPrincipal(ctx, p.ID)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RegistrationsTotal.Inc()
	}
	s.logger.InfoContext(ctx, "company registered, account pending activation",
		"principal_id", p.ID.String(),
	)
	return p, nil
}

// rollbackPrincipal removes a principal whose account record never made it,
// freeing the email to register again. Failure leaves the orphan in place;
// it is logged and the email stays blocked until an operator removes it.
func (s *Service) rollbackPrincipal(ctx context.Context, principalID id.PrincipalID) {
	if err := s.principals.Delete(context.WithoutCancel(ctx), principalID); err != nil {
		s.logger.ErrorContext(ctx, "orphan principal left behind after failed registration",
			"principal_id", principalID.String(),
			"error", err,
		)
	}
}

// createPendingAccount writes the account record with its UNVERIFIED→PENDING
// transition already folded in, audits it, and refreshes the queue.
func (s *Service) createPendingAccount(ctx context.Context, principalID id.PrincipalID) error {
	now := time.Now()
	transition := models.Transition{
		From:  models.StatusUnverified,
		To:    models.StatusPending,
		Actor: models.ActorRegistration,
		At:    now,
	}
	record := &models.VerificationRecord{
		PrincipalID: principalID,
		Kind:        models.KindAccount,
		Status:      models.StatusPending,
		History:     []models.Transition{transition},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.records.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "account record already exists")
		}
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "record store unavailable")
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, models.KindAccount)
	}

	entry := audit.FromTransition(record, 0, transition)
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.auditor.Emit(auditCtx, entry); err != nil {
		s.logger.ErrorContext(ctx, "registration committed but audit entry not durable",
			"principal_id", principalID.String(),
			"error", err,
		)
	}
	return nil
}
