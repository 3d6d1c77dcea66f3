package session

import (
	"context"

	"bountydesk/internal/verification/models"
	id "bountydesk/pkg/domain"
	dErrors "bountydesk/pkg/domain-errors"
)

// Capabilities answers company permission checks from KYB status. A company
// without a KYB record simply lacks the capability; that is not an error.
type Capabilities struct {
	statuses StatusReader
}

func NewCapabilities(statuses StatusReader) *Capabilities {
	return &Capabilities{statuses: statuses}
}

// CanLaunchPrivatePrograms reports whether the company may run invite-only
// bounty programs. Requires KYB VERIFIED.
func (c *Capabilities) CanLaunchPrivatePrograms(ctx context.Context, principalID id.PrincipalID) (bool, error) {
	return c.kybVerified(ctx, principalID)
}

// CanInviteMembers reports whether the company may invite researchers to its
// programs. Requires KYB VERIFIED.
func (c *Capabilities) CanInviteMembers(ctx context.Context, principalID id.PrincipalID) (bool, error) {
	return c.kybVerified(ctx, principalID)
}

func (c *Capabilities) kybVerified(ctx context.Context, principalID id.PrincipalID) (bool, error) {
	status, err := c.statuses.CurrentStatus(ctx, principalID, models.KindKYB)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return status == models.StatusVerified, nil
}
