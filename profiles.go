package identity

import (
	"context"
)

// ProfileResolver owns the selectable profile list and the durable
// "selection made" flag. Every error path resolves to "do not force the
// selector": a broken profile backend must never lock the actor out of the
// app shell.
type ProfileResolver struct {
	backend      ProfileBackend
	store        Store
	selectionKey string
	logger       Logger
}

// ProfileResolverOption configures a ProfileResolver.
type ProfileResolverOption func(*ProfileResolver)

// WithProfileLogger sets the resolver's logger.
func WithProfileLogger(logger Logger) ProfileResolverOption {
	return func(p *ProfileResolver) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithSelectionKey overrides the store key for the selection-made flag.
func WithSelectionKey(key string) ProfileResolverOption {
	return func(p *ProfileResolver) {
		if key != "" {
			p.selectionKey = key
		}
	}
}

// NewProfileResolver wires a resolver over the profile backend and the
// durable store.
func NewProfileResolver(backend ProfileBackend, store Store, opts ...ProfileResolverOption) *ProfileResolver {
	resolver := &ProfileResolver{
		backend:      backend,
		store:        store,
		selectionKey: DefaultConfig().GetSelectionMadeKey(),
		logger:       defLogger{},
	}
	for _, opt := range opts {
		opt(resolver)
	}
	return resolver
}

// ListAvailableProfiles returns the profiles the actor may switch to: a main
// profile synthesized from the identity, followed by the backend's kid
// profiles. Non-kid backend entries are dropped and duplicate ids keep the
// first occurrence.
func (p *ProfileResolver) ListAvailableProfiles(ctx context.Context, ident *Identity) ([]Profile, error) {
	if ident == nil {
		return nil, ErrIdentityNotLoaded
	}

	profiles := []Profile{{
		ID:        ident.AccountID,
		Name:      ident.DisplayName,
		Type:      ProfileTypeMain,
		AvatarURL: ident.AvatarURL,
	}}

	candidates, err := p.backend.ListAvailableProfiles(ctx)
	if err != nil {
		p.logger.Warn("profile list unavailable: %s", err)
		return profiles, nil
	}

	seen := map[string]bool{ident.AccountID: true}
	for _, candidate := range candidates {
		if candidate.Type != ProfileTypeKid {
			continue
		}
		if candidate.ID == "" || seen[candidate.ID] {
			continue
		}
		seen[candidate.ID] = true
		profiles = append(profiles, candidate)
	}

	return profiles, nil
}

// IsSelectionRequired reports whether the profile selector must be shown
// before content. All of the following must hold: the actor is an
// unrestricted viewer, no durable selection was made, at least one kid
// profile exists, and the backend flags selection as required. Any failure
// along the way resolves to false.
func (p *ProfileResolver) IsSelectionRequired(ctx context.Context, ident *Identity) bool {
	if ident == nil || ident.Role != RoleViewer {
		return false
	}

	made, err := p.SelectionMade(ctx)
	if err != nil {
		p.logger.Warn("selection flag unreadable, skipping selector: %s", err)
		return false
	}
	if made {
		return false
	}

	profiles, err := p.ListAvailableProfiles(ctx, ident)
	if err != nil {
		return false
	}
	hasKids := false
	for _, profile := range profiles {
		if profile.Type == ProfileTypeKid {
			hasKids = true
			break
		}
	}
	if !hasKids {
		return false
	}

	required, err := p.backend.IsSelectionRequired(ctx)
	if err != nil {
		p.logger.Warn("selection requirement check failed, skipping selector: %s", err)
		return false
	}
	return required
}

// SelectionMade reads the durable selection flag.
func (p *ProfileResolver) SelectionMade(ctx context.Context) (bool, error) {
	value, ok, err := p.store.Get(ctx, p.selectionKey)
	if err != nil {
		return false, err
	}
	return ok && value == "true", nil
}

// MarkSelectionMade durably records that the actor picked a profile. The
// selector stays hidden across reloads until ResetSelectionMade.
func (p *ProfileResolver) MarkSelectionMade(ctx context.Context) error {
	return p.store.Set(ctx, p.selectionKey, "true")
}

// ResetSelectionMade clears the flag, re-arming the selector. Called on
// logout.
func (p *ProfileResolver) ResetSelectionMade(ctx context.Context) error {
	return p.store.Delete(ctx, p.selectionKey)
}

// ResolveSelectionState assembles the full selector state for publication.
func (p *ProfileResolver) ResolveSelectionState(ctx context.Context, ident *Identity) ProfileSelectionState {
	state := ProfileSelectionState{}
	if ident == nil {
		return state
	}

	if made, err := p.SelectionMade(ctx); err == nil {
		state.Made = made
	}

	if profiles, err := p.ListAvailableProfiles(ctx, ident); err == nil {
		state.Candidates = profiles
	}

	state.Required = p.IsSelectionRequired(ctx, ident)
	return state
}

// FindProfile locates a candidate profile by id.
func (p *ProfileResolver) FindProfile(ctx context.Context, ident *Identity, profileID string) (Profile, error) {
	profiles, err := p.ListAvailableProfiles(ctx, ident)
	if err != nil {
		return Profile{}, err
	}
	for _, profile := range profiles {
		if profile.ID == profileID {
			return profile, nil
		}
	}
	return Profile{}, ErrProfileNotFound.WithMetadata(map[string]any{
		"profile_id": profileID,
	})
}
