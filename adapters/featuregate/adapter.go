// Package identitygate bridges resolved identity state into go-featuregate
// claims, so feature gates can key on the actor's role and plan features.
package identitygate

import (
	"context"

	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-identity"
)

// StateExtractor extracts a published identity state from context.
type StateExtractor func(context.Context) (identity.State, bool)

// RoleMapper builds role identifiers from a published state.
type RoleMapper func(state identity.State) []string

// PermMapper builds permission identifiers from a published state.
type PermMapper func(state identity.State) []string

// Option customizes ClaimsProvider behavior.
type Option func(*ClaimsProvider)

// ClaimsProvider derives feature claims from the published identity state.
type ClaimsProvider struct {
	extractor  StateExtractor
	roleMapper RoleMapper
	permMapper PermMapper
}

// NewClaimsProvider builds a claims provider reading state from context.
func NewClaimsProvider(opts ...Option) *ClaimsProvider {
	provider := &ClaimsProvider{
		extractor: identity.StateFromContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	if provider.extractor == nil {
		provider.extractor = identity.StateFromContext
	}
	if provider.roleMapper == nil {
		provider.roleMapper = defaultRoleMapper
	}
	if provider.permMapper == nil {
		provider.permMapper = defaultPermMapper
	}
	return provider
}

// WithStateExtractor overrides the state extractor.
func WithStateExtractor(extractor StateExtractor) Option {
	return func(provider *ClaimsProvider) {
		if provider == nil {
			return
		}
		provider.extractor = extractor
	}
}

// WithRoleMapper overrides the default role mapper.
func WithRoleMapper(mapper RoleMapper) Option {
	return func(provider *ClaimsProvider) {
		if provider == nil {
			return
		}
		provider.roleMapper = mapper
	}
}

// WithPermMapper overrides the default permission mapper.
func WithPermMapper(mapper PermMapper) Option {
	return func(provider *ClaimsProvider) {
		if provider == nil {
			return
		}
		provider.permMapper = mapper
	}
}

// ClaimsFromContext implements gate.ClaimsProvider.
func (p *ClaimsProvider) ClaimsFromContext(ctx context.Context) (gate.ActorClaims, error) {
	if p == nil || p.extractor == nil {
		return gate.ActorClaims{}, nil
	}
	state, ok := p.extractor(ctx)
	if !ok || !state.Authenticated || state.Identity == nil {
		return gate.ActorClaims{}, nil
	}
	return ClaimsFromState(state, p.roleMapper, p.permMapper), nil
}

// Permissions implements gate.PermissionProvider.
func (p *ClaimsProvider) Permissions(ctx context.Context, actor gate.ActorRef) ([]string, error) {
	if p == nil || p.extractor == nil {
		return nil, nil
	}
	state, ok := p.extractor(ctx)
	if !ok || state.Identity == nil || state.Identity.AccountID != actor.ID {
		return nil, nil
	}
	return p.permMapper(state), nil
}

// ClaimsFromState builds ActorClaims from a published state.
func ClaimsFromState(state identity.State, roleMapper RoleMapper, permMapper PermMapper) gate.ActorClaims {
	if state.Identity == nil {
		return gate.ActorClaims{}
	}

	claims := gate.ActorClaims{
		SubjectID: state.Identity.AccountID,
	}
	if roleMapper != nil {
		claims.Roles = roleMapper(state)
	}
	if permMapper != nil {
		claims.Perms = permMapper(state)
	}
	return claims
}

func defaultRoleMapper(state identity.State) []string {
	if state.Identity == nil {
		return nil
	}
	roles := []string{string(state.Identity.Role)}
	if state.IsKidMode() && state.Identity.Role != identity.RoleKid {
		roles = append(roles, string(identity.RoleKid))
	}
	return roles
}

// defaultPermMapper exposes the snapshot's plan features as feature:<name>
// permissions. No access means no permissions at all.
func defaultPermMapper(state identity.State) []string {
	if !state.CanAccessPremium() {
		return nil
	}
	perms := make([]string, 0, len(state.Subscription.PlanFeatures))
	for _, feature := range state.Subscription.PlanFeatures {
		perms = append(perms, "feature:"+feature)
	}
	return perms
}
