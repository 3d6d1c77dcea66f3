// Package verification holds the approval state machine shared by the
// decision service and the document intake adapter: the transition table,
// the record store contract, and the per-record serialization primitive.
package verification

import (
	"bountydesk/internal/verification/models"
	dErrors "bountydesk/pkg/domain-errors"
)

// approveTarget maps each kind to the status an APPROVE commits.
// Accounts activate, companies verify.
var approveTarget = map[models.Kind]models.Status{
	models.KindAccount: models.StatusActive,
	models.KindKYB:     models.StatusVerified,
}

// NextStatus validates a decision action against the record's current status
// and returns the status it would commit. Decisions are only defined on
// PENDING records. A record that was already decided fails with stale_state:
// the caller acted on a stale queue view and must re-fetch. A record that was
// never submitted fails with invalid_transition.
func NextStatus(kind models.Kind, current models.Status, action models.Action) (models.Status, error) {
	if !action.Valid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "action must be APPROVE or REJECT")
	}
	switch current {
	case models.StatusPending:
	case models.StatusActive, models.StatusVerified, models.StatusRejected:
		return "", dErrors.New(dErrors.CodeStaleState,
			"record was already decided, current status is "+string(current))
	default:
		return "", dErrors.New(dErrors.CodeInvalidTransition,
			"decision requires PENDING status, record is "+string(current))
	}
	if action == models.ActionReject {
		return models.StatusRejected, nil
	}
	return approveTarget[kind], nil
}

// CanAttachEvidence reports whether the KYB evidence list is editable in the
// given status. Evidence is frozen the moment a submission enters review and
// stays frozen after approval; a rejected record reopens for a fresh set.
func CanAttachEvidence(current models.Status) bool {
	return current == models.StatusUnverified || current == models.StatusRejected
}

// CanSubmit validates the UNVERIFIED→PENDING (or REJECTED→PENDING
// resubmission) edge for KYB records.
func CanSubmit(current models.Status) error {
	switch current {
	case models.StatusUnverified, models.StatusRejected:
		return nil
	case models.StatusPending:
		return dErrors.New(dErrors.CodeInvalidTransition, "submission already under review")
	default:
		return dErrors.New(dErrors.CodeInvalidTransition,
			"cannot submit from status "+string(current))
	}
}
