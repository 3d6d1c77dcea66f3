package verification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bountydesk/internal/verification/models"
	dErrors "bountydesk/pkg/domain-errors"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		name     string
		kind     models.Kind
		current  models.Status
		action   models.Action
		want     models.Status
		wantCode dErrors.Code
	}{
		{
			name:    "approve pending account activates",
			kind:    models.KindAccount,
			current: models.StatusPending,
			action:  models.ActionApprove,
			want:    models.StatusActive,
		},
		{
			name:    "approve pending kyb verifies",
			kind:    models.KindKYB,
			current: models.StatusPending,
			action:  models.ActionApprove,
			want:    models.StatusVerified,
		},
		{
			name:    "reject pending account",
			kind:    models.KindAccount,
			current: models.StatusPending,
			action:  models.ActionReject,
			want:    models.StatusRejected,
		},
		{
			name:    "reject pending kyb",
			kind:    models.KindKYB,
			current: models.StatusPending,
			action:  models.ActionReject,
			want:    models.StatusRejected,
		},
		{
			name:     "unverified record was never submitted",
			kind:     models.KindAccount,
			current:  models.StatusUnverified,
			action:   models.ActionApprove,
			wantCode: dErrors.CodeInvalidTransition,
		},
		{
			name:     "active record was already decided",
			kind:     models.KindAccount,
			current:  models.StatusActive,
			action:   models.ActionApprove,
			wantCode: dErrors.CodeStaleState,
		},
		{
			name:     "verified record was already decided",
			kind:     models.KindKYB,
			current:  models.StatusVerified,
			action:   models.ActionReject,
			wantCode: dErrors.CodeStaleState,
		},
		{
			name:     "rejected record was already decided",
			kind:     models.KindKYB,
			current:  models.StatusRejected,
			action:   models.ActionApprove,
			wantCode: dErrors.CodeStaleState,
		},
		{
			name:     "unknown action",
			kind:     models.KindAccount,
			current:  models.StatusPending,
			action:   models.Action("DEFER"),
			wantCode: dErrors.CodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextStatus(tt.kind, tt.current, tt.action)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, tt.wantCode), "got error %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanAttachEvidence(t *testing.T) {
	assert.True(t, CanAttachEvidence(models.StatusUnverified))
	assert.True(t, CanAttachEvidence(models.StatusRejected))
	assert.False(t, CanAttachEvidence(models.StatusPending))
	assert.False(t, CanAttachEvidence(models.StatusVerified))
	assert.False(t, CanAttachEvidence(models.StatusActive))
}

func TestCanSubmit(t *testing.T) {
	assert.NoError(t, CanSubmit(models.StatusUnverified))
	assert.NoError(t, CanSubmit(models.StatusRejected))

	err := CanSubmit(models.StatusPending)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	err = CanSubmit(models.StatusVerified)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
}

func TestFoldStatus(t *testing.T) {
	assert.Equal(t, models.StatusUnverified, models.FoldStatus(nil))

	history := []models.Transition{
		{From: models.StatusUnverified, To: models.StatusPending},
		{From: models.StatusPending, To: models.StatusRejected},
		{From: models.StatusRejected, To: models.StatusPending},
		{From: models.StatusPending, To: models.StatusVerified},
	}
	assert.Equal(t, models.StatusVerified, models.FoldStatus(history))
}
