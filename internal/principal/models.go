// Package principal holds the directory of verification subjects: users and
// companies, with the display metadata the approval queue joins in. The
// engine treats names and emails as opaque.
package principal

import (
	"context"
	"time"

	id "bountydesk/pkg/domain"
)

// Kind distinguishes the two principal types subject to verification.
type Kind string

const (
	KindUser    Kind = "USER"
	KindCompany Kind = "COMPANY"
)

// Principal is a user account or a company identified by a stable ID.
type Principal struct {
	ID    id.PrincipalID `json:"id"`
	Kind  Kind           `json:"kind"`
	Name  string         `json:"name"`
	Email string         `json:"email"`
	// PasswordHash is set for user principals only; bcrypt, never serialized.
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists principals. Implementations must be safe for concurrent use.
type Store interface {
	Save(ctx context.Context, p *Principal) error
	FindByID(ctx context.Context, principalID id.PrincipalID) (*Principal, error)
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	Delete(ctx context.Context, principalID id.PrincipalID) error
}
