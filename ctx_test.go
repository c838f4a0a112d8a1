package identity_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityContextRoundTrip(t *testing.T) {
	ident := viewerIdentity()
	ctx := identity.WithContext(context.Background(), ident)

	got, ok := identity.FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, ident, got)

	_, ok = identity.FromContext(context.Background())
	assert.False(t, ok)
}

func TestStateContextRoundTrip(t *testing.T) {
	state := identity.State{
		Authenticated: true,
		Identity:      viewerIdentity(),
	}
	ctx := identity.WithStateContext(context.Background(), state)

	got, ok := identity.StateFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, state, got)

	_, ok = identity.StateFromContext(context.Background())
	assert.False(t, ok)
}
