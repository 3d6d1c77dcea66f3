package models

import (
	"time"

	id "bountydesk/pkg/domain"
)

// Kind selects which of the two parallel verification machines a record
// belongs to: user account activation or company KYB.
type Kind string

const (
	KindAccount Kind = "account"
	KindKYB     Kind = "kyb"
)

// Valid reports whether k is a known verification kind.
func (k Kind) Valid() bool {
	return k == KindAccount || k == KindKYB
}

// Status enumerates verification states across both kinds. ACTIVE is the
// approved terminal for accounts, VERIFIED for KYB; the remaining states are
// shared.
type Status string

const (
	StatusUnverified Status = "UNVERIFIED"
	StatusPending    Status = "PENDING"
	StatusActive     Status = "ACTIVE"
	StatusVerified   Status = "VERIFIED"
	StatusRejected   Status = "REJECTED"
)

// Action is an administrator decision on a PENDING record.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
)

// Valid reports whether a is a known decision action.
func (a Action) Valid() bool {
	return a == ActionApprove || a == ActionReject
}

// Actor identifies who caused a transition. Admin decisions carry the admin
// UUID; automatic transitions carry a well-known system actor. A string to
// support both schemes.
type Actor string

const (
	ActorRegistration Actor = "system:registration"
	ActorIntake       Actor = "system:intake"
)

// AdminActor converts an administrator ID into a transition actor.
func AdminActor(adminID id.AdminID) Actor {
	return Actor(adminID.String())
}

// Transition is one committed state change. History is append-only; entries
// are never edited or removed.
type Transition struct {
	From  Status    `json:"from"`
	To    Status    `json:"to"`
	Actor Actor     `json:"actor"`
	At    time.Time `json:"at"`
	Note  string    `json:"note,omitempty"`
}

// Decision is a request to transition a record. It is not persisted on its
// own; a committed decision becomes a history entry.
type Decision struct {
	PrincipalID id.PrincipalID
	Kind        Kind
	Action      Action
	Actor       id.AdminID
	Reason      string
}

// VerificationRecord is the aggregate root for one (principal, kind) pair.
//
// Invariants:
//   - Status always equals FoldStatus(History): the record is a pure fold
//     over its append-only history.
//   - At most one record exists per (principal, kind).
//   - Evidence is non-nil only for KindKYB and is written only while the
//     record is in an editable pre-submission state.
//   - Version increases by exactly one per committed write; stores reject
//     writes whose expected version does not match (compare-and-set).
type VerificationRecord struct {
	PrincipalID id.PrincipalID   `json:"principal_id"`
	Kind        Kind             `json:"kind"`
	Status      Status           `json:"status"`
	Evidence    []id.DocumentRef `json:"evidence,omitempty"`
	// EvidenceUpdatedAt marks the last evidence write. An attach on a
	// REJECTED record whose evidence predates the rejection starts a fresh
	// set rather than extending the refused one.
	EvidenceUpdatedAt time.Time    `json:"evidence_updated_at,omitzero"`
	History           []Transition `json:"history"`
	Version           int64        `json:"version"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// FoldStatus replays a history from the initial state and returns the
// resulting status. An empty history folds to UNVERIFIED.
func FoldStatus(history []Transition) Status {
	if len(history) == 0 {
		return StatusUnverified
	}
	return history[len(history)-1].To
}

// PendingSince returns the timestamp of the record's most recent entry into
// PENDING. The second result is false when the record is not PENDING.
func (r *VerificationRecord) PendingSince() (time.Time, bool) {
	if r.Status != StatusPending {
		return time.Time{}, false
	}
	for i := len(r.History) - 1; i >= 0; i-- {
		if r.History[i].To == StatusPending {
			return r.History[i].At, true
		}
	}
	return time.Time{}, false
}

// Terminal reports whether no further engine-driven transition is defined
// from the record's current status. REJECTED is terminal for accounts but
// re-submittable for KYB.
func (r *VerificationRecord) Terminal() bool {
	switch r.Status {
	case StatusActive, StatusVerified:
		return true
	case StatusRejected:
		return r.Kind == KindAccount
	default:
		return false
	}
}

// Clone returns a deep copy so in-memory stores never leak aliased slices.
func (r *VerificationRecord) Clone() *VerificationRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Evidence = append([]id.DocumentRef(nil), r.Evidence...)
	cp.History = append([]Transition(nil), r.History...)
	return &cp
}
