// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "bountydesk/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing PrincipalID where AdminID is expected.
type (
	PrincipalID uuid.UUID
	AdminID     uuid.UUID
)

// DocumentRef is an opaque reference to a file held by the storage service
// (e.g., "doc_xxxx"). The engine never inspects document content.
type DocumentRef string

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParsePrincipalID(s string) (PrincipalID, error) {
	id, err := parseUUID(s, "principal ID")
	return PrincipalID(id), err
}

func ParseAdminID(s string) (AdminID, error) {
	id, err := parseUUID(s, "admin ID")
	return AdminID(id), err
}

func ParseDocumentRef(s string) (DocumentRef, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "document reference cannot be empty")
	}
	return DocumentRef(s), nil
}

// String methods - for logging and debugging.

func (id PrincipalID) String() string { return uuid.UUID(id).String() }
func (id AdminID) String() string     { return uuid.UUID(id).String() }
func (d DocumentRef) String() string  { return string(d) }

// IsNil checks - used for service-layer validation.

func (id PrincipalID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id AdminID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (d DocumentRef) IsNil() bool  { return d == "" }

// Text marshaling - defined types do not inherit uuid.UUID's methods, and
// without these the IDs would serialize as raw byte arrays in JSON.

func (id PrincipalID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id AdminID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }

func (id *PrincipalID) UnmarshalText(b []byte) error {
	parsed, err := uuid.Parse(string(b))
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid principal ID format")
	}
	*id = PrincipalID(parsed)
	return nil
}

func (id *AdminID) UnmarshalText(b []byte) error {
	parsed, err := uuid.Parse(string(b))
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid admin ID format")
	}
	*id = AdminID(parsed)
	return nil
}

// parseUUID is the shared validation logic. Nil UUIDs are allowed here; use
// IsNil() at the service layer so store lookups can return proper "not found"
// errors instead of input-validation ones.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	return id, nil
}
