// Package session issues and validates signed tokens. It is a read-only
// consumer of the verification engine: activation status gates login, KYB
// status gates company capabilities.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"bountydesk/internal/principal"
	"bountydesk/internal/verification/models"
	id "bountydesk/pkg/domain"
	dErrors "bountydesk/pkg/domain-errors"
	"bountydesk/pkg/platform/sentinel"
)

const (
	defaultTokenTTL = 12 * time.Hour
	roleAdmin       = "admin"
)

// StatusReader is the slice of the verification service the session layer
// depends on.
type StatusReader interface {
	CurrentStatus(ctx context.Context, principalID id.PrincipalID, kind models.Kind) (models.Status, error)
}

// Claims is the token payload. Role is empty for principals and "admin" for
// reviewer tokens.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Service struct {
	principals principal.Store
	statuses   StatusReader
	signingKey []byte
	tokenTTL   time.Duration
	logger     *slog.Logger
}

func New(principals principal.Store, statuses StatusReader, signingKey []byte, logger *slog.Logger) *Service {
	return &Service{
		principals: principals,
		statuses:   statuses,
		signingKey: signingKey,
		tokenTTL:   defaultTokenTTL,
		logger:     logger,
	}
}

// Login authenticates credentials and issues a session token. Credential
// failures and unknown emails return the same unauthorized error.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	p, err := s.principals.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return "", dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "principal directory unavailable")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}
	return s.Issue(ctx, p.ID)
}

// Issue mints a session token iff the principal's account is ACTIVE. A
// pending or rejected account is forbidden from holding a session.
func (s *Service) Issue(ctx context.Context, principalID id.PrincipalID) (string, error) {
	status, err := s.statuses.CurrentStatus(ctx, principalID, models.KindAccount)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return "", dErrors.New(dErrors.CodeForbidden, "account has no verification record")
		}
		return "", err
	}
	if status != models.StatusActive {
		return "", dErrors.New(dErrors.CodeForbidden,
			"account is not active, current status is "+string(status))
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return token, nil
}

// IssueAdmin mints a reviewer token for the admin API.
func (s *Service) IssueAdmin(adminID id.AdminID) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: roleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return token, nil
}

// ValidateAdminToken parses a bearer token and returns the admin ID it
// carries. Non-admin tokens are rejected even when validly signed.
func (s *Service) ValidateAdminToken(token string) (id.AdminID, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		return id.AdminID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if claims.Role != roleAdmin {
		return id.AdminID{}, dErrors.New(dErrors.CodeForbidden, "token lacks admin role")
	}
	adminID, err := id.ParseAdminID(claims.Subject)
	if err != nil {
		return id.AdminID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	return adminID, nil
}
