package identity_test

import (
	"testing"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityIsKidMode(t *testing.T) {
	var nilIdentity *identity.Identity
	assert.False(t, nilIdentity.IsKidMode())

	plain := &identity.Identity{AccountID: "acc-1"}
	assert.False(t, plain.IsKidMode())

	withKid := &identity.Identity{
		AccountID:  "acc-1",
		KidProfile: &identity.KidProfileRef{ID: "kid-1"},
	}
	assert.True(t, withKid.IsKidMode())

	kidDashboard := &identity.Identity{
		AccountID: "acc-1",
		Family:    &identity.FamilyMembership{DashboardType: identity.DashboardKid},
	}
	assert.True(t, kidDashboard.IsKidMode())

	mainDashboard := &identity.Identity{
		AccountID: "acc-1",
		Family:    &identity.FamilyMembership{DashboardType: identity.DashboardMain},
	}
	assert.False(t, mainDashboard.IsKidMode())
}

func TestIdentityClone(t *testing.T) {
	original := identityWithSessions()
	original.Preferences = map[string]string{"locale": "fr"}
	original.Family = &identity.FamilyMembership{OwnerID: "acc-0"}
	original.KidProfile = &identity.KidProfileRef{ID: "kid-1"}

	clone := original.Clone()
	require.NotNil(t, clone)
	assert.Equal(t, original, clone)

	clone.Sessions[0].DeviceName = "changed"
	clone.Preferences["locale"] = "de"
	clone.Family.OwnerID = "changed"
	clone.KidProfile.ID = "changed"

	assert.Equal(t, "laptop", original.Sessions[0].DeviceName)
	assert.Equal(t, "fr", original.Preferences["locale"])
	assert.Equal(t, "acc-0", original.Family.OwnerID)
	assert.Equal(t, "kid-1", original.KidProfile.ID)
}

func TestIdentityCurrentSession(t *testing.T) {
	ident := identityWithSessions()

	session, ok := ident.CurrentSession()
	require.True(t, ok)
	assert.Equal(t, "s1", session.ID)

	ident.CurrentSessionToken = ""
	_, ok = ident.CurrentSession()
	assert.False(t, ok)

	var nilIdentity *identity.Identity
	_, ok = nilIdentity.CurrentSession()
	assert.False(t, ok)
}
