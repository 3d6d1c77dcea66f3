package audit

import (
	"time"

	"github.com/google/uuid"

	"bountydesk/internal/verification/models"
	id "bountydesk/pkg/domain"
)

// Entry is the immutable audit record for one committed verification
// transition: who decided, on what, when, and the outcome. Entries are owned
// exclusively by the emitter; the decision service only triggers their
// creation and never edits them.
type Entry struct {
	ID          uuid.UUID      `json:"id"`
	PrincipalID id.PrincipalID `json:"principal_id"`
	Kind        models.Kind    `json:"kind"`
	// Seq is the transition's index in the record history. Appends for the
	// same record preserve commit order; entries for different records are
	// unordered relative to each other.
	Seq         int           `json:"seq"`
	FromStatus  models.Status `json:"from_status"`
	ToStatus    models.Status `json:"to_status"`
	Actor       models.Actor  `json:"actor"`
	ActorDevice string        `json:"actor_device,omitempty"`
	RequestID   string        `json:"request_id,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	At          time.Time     `json:"at"`
}

// FromTransition builds the audit entry for a committed history entry.
func FromTransition(record *models.VerificationRecord, seq int, t models.Transition) Entry {
	return Entry{
		ID:          uuid.New(),
		PrincipalID: record.PrincipalID,
		Kind:        record.Kind,
		Seq:         seq,
		FromStatus:  t.From,
		ToStatus:    t.To,
		Actor:       t.Actor,
		Reason:      t.Note,
		At:          t.At,
	}
}
