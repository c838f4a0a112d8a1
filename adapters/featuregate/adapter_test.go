package identitygate_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-identity"
	identitygate "github.com/goliatone/go-identity/adapters/featuregate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func premiumState() identity.State {
	return identity.State{
		Authenticated: true,
		Identity: &identity.Identity{
			AccountID: "acc-1",
			Role:      identity.RoleViewer,
		},
		Subscription: identity.SubscriptionSnapshot{
			Status:       identity.StateActive,
			Source:       identity.SourceNetwork,
			PlanFeatures: []string{"premium_catalog", "hd_streaming"},
		},
	}
}

func TestClaimsFromContext(t *testing.T) {
	provider := identitygate.NewClaimsProvider()
	ctx := identity.WithStateContext(context.Background(), premiumState())

	claims, err := provider.ClaimsFromContext(ctx)
	require.NoError(t, err)

	assert.Equal(t, "acc-1", claims.SubjectID)
	assert.Equal(t, []string{"viewer"}, claims.Roles)
	assert.Equal(t, []string{"feature:premium_catalog", "feature:hd_streaming"}, claims.Perms)
}

func TestClaimsFromContext_EmptyWithoutState(t *testing.T) {
	provider := identitygate.NewClaimsProvider()

	claims, err := provider.ClaimsFromContext(context.Background())
	require.NoError(t, err)
	assert.Empty(t, claims.SubjectID)
	assert.Empty(t, claims.Perms)
}

func TestClaimsFromContext_NoAccessMeansNoPerms(t *testing.T) {
	state := premiumState()
	state.Subscription = identity.SubscriptionSnapshot{
		Status: identity.StateExpired,
		Source: identity.SourceNetwork,
	}

	provider := identitygate.NewClaimsProvider()
	ctx := identity.WithStateContext(context.Background(), state)

	claims, err := provider.ClaimsFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.SubjectID)
	assert.Empty(t, claims.Perms)
}

func TestClaimsFromContext_KidModeAddsKidRole(t *testing.T) {
	state := premiumState()
	state.Identity.KidProfile = &identity.KidProfileRef{ID: "kid-1"}
	state.Subscription = identity.KidFreeSnapshot(state.Subscription.FetchedAt)

	provider := identitygate.NewClaimsProvider()
	ctx := identity.WithStateContext(context.Background(), state)

	claims, err := provider.ClaimsFromContext(ctx)
	require.NoError(t, err)
	assert.Contains(t, claims.Roles, "kid")
	assert.Contains(t, claims.Perms, "feature:kids_catalog")
}

func TestPermissions(t *testing.T) {
	provider := identitygate.NewClaimsProvider()
	ctx := identity.WithStateContext(context.Background(), premiumState())

	perms, err := provider.Permissions(ctx, gate.ActorRef{ID: "acc-1"})
	require.NoError(t, err)
	assert.Contains(t, perms, "feature:premium_catalog")

	// a different actor gets nothing from this context
	perms, err = provider.Permissions(ctx, gate.ActorRef{ID: "acc-2"})
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestCustomMappers(t *testing.T) {
	provider := identitygate.NewClaimsProvider(
		identitygate.WithRoleMapper(func(state identity.State) []string {
			return []string{"custom-role"}
		}),
		identitygate.WithPermMapper(func(state identity.State) []string {
			return []string{"custom-perm"}
		}),
	)
	ctx := identity.WithStateContext(context.Background(), premiumState())

	claims, err := provider.ClaimsFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"custom-role"}, claims.Roles)
	assert.Equal(t, []string{"custom-perm"}, claims.Perms)
}
