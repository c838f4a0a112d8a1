package identity_test

import (
	"testing"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
)

func TestRoleValidation(t *testing.T) {
	for _, role := range identity.GetAllRoles() {
		assert.True(t, role.IsValid(), string(role))
	}
	assert.False(t, identity.Role("superadmin").IsValid())
	assert.False(t, identity.Role("").IsValid())
}

func TestParseRole(t *testing.T) {
	role, ok := identity.ParseRole("manager")
	assert.True(t, ok)
	assert.Equal(t, identity.RoleManager, role)

	_, ok = identity.ParseRole("nope")
	assert.False(t, ok)
}

func TestRoleCapabilities(t *testing.T) {
	assert.True(t, identity.RoleKid.IsRestricted())
	assert.False(t, identity.RoleViewer.IsRestricted())

	assert.True(t, identity.RoleViewer.CanSelectProfiles())
	assert.True(t, identity.RoleManager.CanSelectProfiles())
	assert.False(t, identity.RoleKid.CanSelectProfiles())
	assert.False(t, identity.RoleFamilyMember.CanSelectProfiles())

	assert.True(t, identity.RoleFamilyMember.CanManageSessions())
	assert.False(t, identity.RoleKid.CanManageSessions())

	assert.True(t, identity.RoleManager.CanManagePlan())
	assert.False(t, identity.RoleViewer.CanManagePlan())
}

func TestRoleHierarchy(t *testing.T) {
	assert.True(t, identity.RoleManager.IsAtLeast(identity.RoleViewer))
	assert.True(t, identity.RoleViewer.IsAtLeast(identity.RoleViewer))
	assert.False(t, identity.RoleKid.IsAtLeast(identity.RoleFamilyMember))
	assert.False(t, identity.Role("nope").IsAtLeast(identity.RoleKid))
}
