package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSupportStatus(t *testing.T) {
	cases := map[string]SupportStatus{
		"pending":     SupportStatusPending,
		"InProgress":  SupportStatusInProgress,
		"in-progress": SupportStatusInProgress,
		"IN_PROGRESS": SupportStatusInProgress,
		" Resolved ":  SupportStatusResolved,
		"closed":      SupportStatusClosed,
	}
	for raw, want := range cases {
		got, ok := ParseSupportStatus(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}

	_, ok := ParseSupportStatus("archived")
	assert.False(t, ok)
	assert.False(t, SupportStatus("InProgress").Valid())
	assert.True(t, SupportStatusClosed.Valid())
}

func TestSupportStatusCanTransitionTo(t *testing.T) {
	assert.True(t, SupportStatusPending.CanTransitionTo(SupportStatusInProgress))
	assert.True(t, SupportStatusPending.CanTransitionTo(SupportStatusClosed))
	assert.False(t, SupportStatusPending.CanTransitionTo(SupportStatusResolved))
	assert.True(t, SupportStatusInProgress.CanTransitionTo(SupportStatusResolved))
	assert.True(t, SupportStatusResolved.CanTransitionTo(SupportStatusClosed))
	assert.True(t, SupportStatusResolved.CanTransitionTo(SupportStatusInProgress))
	assert.True(t, SupportStatusClosed.CanTransitionTo(SupportStatusInProgress))
	assert.False(t, SupportStatusClosed.CanTransitionTo(SupportStatusPending))
	assert.True(t, SupportStatusClosed.CanTransitionTo(SupportStatusClosed))
}

func TestUserRoleIsSupportAdmin(t *testing.T) {
	assert.True(t, RoleAdmin.IsSupportAdmin())
	assert.True(t, RoleSuperAdmin.IsSupportAdmin())
	assert.False(t, RoleVoter.IsSupportAdmin())
}
