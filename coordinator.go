package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the single published view of who the actor is and what they are
// entitled to. Replaced wholesale on every pipeline run, never partially
// mutated, so a subscriber can never observe a new identity next to a stale
// entitlement.
type State struct {
	Generation       uint64                `json:"generation"`
	Authenticated    bool                  `json:"authenticated"`
	Identity         *Identity             `json:"identity,omitempty"`
	ProfileSelection ProfileSelectionState `json:"profile_selection"`
	Subscription     SubscriptionSnapshot  `json:"subscription"`
	Sessions         []SessionRecord       `json:"sessions,omitempty"`
	RefreshError     string                `json:"refresh_error,omitempty"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// IsKidMode reports whether the published identity is in a restricted
// viewing context.
func (s State) IsKidMode() bool {
	return s.Identity.IsKidMode()
}

// CanAccessPremium reports whether the published entitlement grants premium
// access.
func (s State) CanAccessPremium() bool {
	return s.Subscription.HasAccess()
}

// Backends groups the remote dependencies of a Coordinator.
type Backends struct {
	Auth         AuthBackend
	Entitlements EntitlementBackend
	Profiles     ProfileBackend
	Sessions     SessionBackend
}

// Coordinator runs the identity resolution pipeline: fetch the raw payload,
// normalize it, resolve the viewing mode, compute selector and entitlement
// state, and publish one atomic State. Concurrent runs are serialized by a
// generation counter; a run that loses the race publishes nothing.
type Coordinator struct {
	auth     AuthBackend
	profiles *ProfileResolver
	engine   *EntitlementEngine
	registry *SessionRegistry
	store    Store
	config   Config
	logger   Logger
	sink     ActivitySink
	now      Clock

	mu             sync.RWMutex
	state          State
	generation     uint64
	requestedKidID string
	subscribers    map[int]func(State)
	nextSubscriber int
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the coordinator's logger. The sub-components inherit it
// unless overridden through their own options.
func WithLogger(logger Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock injects the coordinator's time source.
func WithClock(clock Clock) CoordinatorOption {
	return func(c *Coordinator) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithConfig overrides the default configuration values.
func WithConfig(config Config) CoordinatorOption {
	return func(c *Coordinator) {
		if config != nil {
			c.config = config
		}
	}
}

// WithStore sets the durable key-value store. Defaults to an in-memory
// store.
func WithStore(store Store) CoordinatorOption {
	return func(c *Coordinator) {
		if store != nil {
			c.store = store
		}
	}
}

// WithActivitySink attaches an audit sink shared by the coordinator and its
// sub-components.
func WithActivitySink(sink ActivitySink) CoordinatorOption {
	return func(c *Coordinator) {
		c.sink = normalizeActivitySink(sink)
	}
}

// NewCoordinator wires the full pipeline over the given backends.
func NewCoordinator(backends Backends, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		auth:        backends.Auth,
		config:      DefaultConfig(),
		logger:      defLogger{},
		sink:        noopActivitySink{},
		now:         time.Now,
		subscribers: map[int]func(State){},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewMemoryStore()
	}

	c.profiles = NewProfileResolver(backends.Profiles, c.store,
		WithProfileLogger(c.logger),
		WithSelectionKey(c.config.GetSelectionMadeKey()),
	)
	c.engine = NewEntitlementEngine(backends.Entitlements,
		WithEngineLogger(c.logger),
		WithEngineClock(c.now),
		WithEngineInterval(c.config.GetRefreshInterval()),
		WithEngineActivitySink(c.sink),
		WithEngineOnChange(c.applySnapshot),
	)
	c.registry = NewSessionRegistry(backends.Sessions,
		WithSessionLogger(c.logger),
		WithSessionClock(c.now),
		WithSessionActivitySink(c.sink),
	)

	c.state = State{
		Subscription: NoSubscriptionSnapshot(c.now()),
		UpdatedAt:    c.now(),
	}
	return c
}

// Profiles exposes the profile resolver for direct queries.
func (c *Coordinator) Profiles() *ProfileResolver { return c.profiles }

// Entitlements exposes the entitlement engine for direct queries.
func (c *Coordinator) Entitlements() *EntitlementEngine { return c.engine }

// Sessions exposes the session registry for direct queries.
func (c *Coordinator) Sessions() *SessionRegistry { return c.registry }

// State returns the last published state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Identity returns the published identity, or ErrIdentityNotLoaded.
func (c *Coordinator) Identity() (*Identity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.state.Authenticated || c.state.Identity == nil {
		return nil, ErrIdentityNotLoaded
	}
	return c.state.Identity, nil
}

// Subscribe registers a callback for published states. The returned function
// removes the subscription. Callbacks run outside the coordinator lock.
func (c *Coordinator) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextSubscriber
	c.nextSubscriber++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

// Refresh runs the full resolution pipeline. Safe to call concurrently; when
// runs overlap only the newest one publishes.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.generation++
	generation := c.generation
	requestedKid := c.requestedKidID
	previous := c.state
	c.mu.Unlock()

	payload, err := c.auth.GetCurrentIdentity(ctx)
	if err != nil {
		if IsAuthError(err) {
			c.logger.Info("identity fetch unauthenticated, clearing state")
			c.clear(ctx, generation)
			return err
		}
		c.flagRefreshError(generation, err)
		return err
	}

	ident, err := Normalize(payload)
	if err != nil {
		// an unparseable identity cannot be trusted; fail closed
		c.logger.Error("identity payload rejected: %s", err)
		c.clear(ctx, generation)
		return err
	}

	kid := c.resolveKidProfile(ctx, ident, requestedKid)
	if kid != nil {
		ident.KidProfile = kid
	}

	var selection ProfileSelectionState
	if kid == nil && !ident.IsKidMode() {
		selection = c.profiles.ResolveSelectionState(ctx, ident)
	}

	snapshot, refreshErr := c.engine.Resolve(ctx, ident, ident.Family, kid)

	state := State{
		Generation:       generation,
		Authenticated:    true,
		Identity:         ident,
		ProfileSelection: selection,
		Subscription:     snapshot,
		Sessions:         append([]SessionRecord(nil), ident.Sessions...),
		UpdatedAt:        c.now(),
	}
	if refreshErr != nil {
		state.RefreshError = refreshErr.Error()
	}

	if !c.publish(state) {
		return nil
	}
	c.registry.Populate(ident)

	c.recordEvent(ctx, EventIdentityResolved, ident, nil)
	c.emitKidModeTransition(ctx, previous, state)
	return nil
}

// Login resolves the freshly authenticated actor.
func (c *Coordinator) Login(ctx context.Context) error {
	return c.Refresh(ctx)
}

// Logout clears the published state and re-arms the profile selector.
func (c *Coordinator) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.generation++
	generation := c.generation
	c.requestedKidID = ""
	c.mu.Unlock()

	c.clear(ctx, generation)
	return nil
}

// EnterKidMode switches the session into the given kid profile's restricted
// context and re-runs the pipeline.
func (c *Coordinator) EnterKidMode(ctx context.Context, kidProfileID string) error {
	ident, err := c.Identity()
	if err != nil {
		return err
	}
	if _, err := c.profiles.FindProfile(ctx, ident, kidProfileID); err != nil {
		return err
	}

	if switcher, ok := c.auth.(ModeSwitcher); ok {
		if err := switcher.SetSessionMode(ctx, kidProfileID); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.requestedKidID = kidProfileID
	c.mu.Unlock()

	return c.Refresh(ctx)
}

// ExitKidMode returns the session to the unrestricted context.
func (c *Coordinator) ExitKidMode(ctx context.Context) error {
	if _, err := c.Identity(); err != nil {
		return err
	}

	if switcher, ok := c.auth.(ModeSwitcher); ok {
		if err := switcher.SetSessionMode(ctx, ""); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.requestedKidID = ""
	c.mu.Unlock()

	return c.Refresh(ctx)
}

// SelectProfile records a durable profile choice and applies it: a kid
// profile enters kid mode, the main profile stays unrestricted.
func (c *Coordinator) SelectProfile(ctx context.Context, profileID string) error {
	ident, err := c.Identity()
	if err != nil {
		return err
	}

	profile, err := c.profiles.FindProfile(ctx, ident, profileID)
	if err != nil {
		return err
	}

	if err := c.profiles.MarkSelectionMade(ctx); err != nil {
		c.logger.Warn("selection flag not persisted: %s", err)
	}

	c.recordEvent(ctx, EventProfileSelected, ident, map[string]any{
		"profile_id":   profile.ID,
		"profile_type": string(profile.Type),
	})

	if profile.Type == ProfileTypeKid {
		return c.EnterKidMode(ctx, profile.ID)
	}
	return c.Refresh(ctx)
}

// Locale returns the active locale: durable store first, then the identity's
// preference, then the configured default.
func (c *Coordinator) Locale(ctx context.Context) string {
	if value, ok, err := c.store.Get(ctx, c.config.GetLocaleKey()); err == nil && ok && value != "" {
		return value
	}
	if ident, err := c.Identity(); err == nil {
		if value := ident.Preferences[c.config.GetLocaleKey()]; value != "" {
			return value
		}
	}
	return c.config.GetDefaultLocale()
}

// SetLocale durably stores the locale preference.
func (c *Coordinator) SetLocale(ctx context.Context, locale string) error {
	return c.store.Set(ctx, c.config.GetLocaleKey(), locale)
}

// Start launches the periodic entitlement refresh loop.
func (c *Coordinator) Start(ctx context.Context) {
	c.engine.Start(ctx)
}

// Close stops background work.
func (c *Coordinator) Close() {
	c.engine.Close()
}

// resolveKidProfile picks the active kid profile, first match wins: the
// server's session mode, an explicitly requested profile, the payload's own
// active profile, and finally a synthesized profile for family members
// flagged kid-dashboard but missing an explicit record.
func (c *Coordinator) resolveKidProfile(ctx context.Context, ident *Identity, requestedKid string) *KidProfileRef {
	if mode, err := c.auth.GetSessionMode(ctx); err == nil && mode != nil {
		if !mode.IsKidMode {
			if requestedKid == "" {
				return nil
			}
		} else if mode.ActiveKidProfile != nil && mode.ActiveKidProfile.ID != "" {
			return mode.ActiveKidProfile
		}
	}

	if requestedKid != "" {
		if profile, err := c.profiles.FindProfile(ctx, ident, requestedKid); err == nil && profile.Type == ProfileTypeKid {
			return &KidProfileRef{
				ID:           profile.ID,
				Name:         profile.Name,
				MaxAgeRating: profile.MaxAgeRating,
				AvatarURL:    profile.AvatarURL,
			}
		}
		c.logger.Warn("requested kid profile %q not found, ignoring", requestedKid)
	}

	if ident.KidProfile != nil {
		return ident.KidProfile
	}

	if ident.Family != nil && ident.Family.DashboardType == DashboardKid {
		return c.synthesizeKidProfile(ident)
	}

	return nil
}

// synthesizeKidProfile fabricates a stable stand-in profile for a family
// member restricted to the kid dashboard without an explicit profile record.
// The id is deterministic so repeated resolutions agree.
func (c *Coordinator) synthesizeKidProfile(ident *Identity) *KidProfileRef {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("kid-profile:"+ident.AccountID))
	return &KidProfileRef{
		ID:           id.String(),
		Name:         ident.DisplayName,
		MaxAgeRating: c.config.GetSyntheticAgeRating(),
		AvatarURL:    ident.AvatarURL,
		Synthetic:    true,
	}
}

// publish installs the state unless a newer pipeline run started since this
// one. Returns whether the state was applied.
func (c *Coordinator) publish(state State) bool {
	c.mu.Lock()
	if state.Generation != c.generation {
		c.mu.Unlock()
		c.logger.Debug("discarding stale pipeline result, generation %d behind %d", state.Generation, c.generation)
		return false
	}
	c.state = state
	subscribers := c.collectSubscribers()
	c.mu.Unlock()

	for _, fn := range subscribers {
		fn(state)
	}
	return true
}

// applySnapshot folds a ticker driven entitlement refresh into the published
// state without re-running the identity pipeline. While a pipeline run is in
// flight the fold is skipped; that run publishes the fresh snapshot together
// with its identity, so no mixed state ever goes out.
func (c *Coordinator) applySnapshot(snapshot SubscriptionSnapshot) {
	c.mu.Lock()
	if !c.state.Authenticated || c.state.Generation != c.generation {
		c.mu.Unlock()
		return
	}
	c.state.Subscription = snapshot
	c.state.RefreshError = ""
	c.state.UpdatedAt = c.now()
	state := c.state
	subscribers := c.collectSubscribers()
	c.mu.Unlock()

	for _, fn := range subscribers {
		fn(state)
	}
}

// flagRefreshError keeps the current state on a transient identity fetch
// failure and only raises the error flag.
func (c *Coordinator) flagRefreshError(generation uint64, err error) {
	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		return
	}
	c.state.Generation = generation
	c.state.RefreshError = err.Error()
	c.state.UpdatedAt = c.now()
	state := c.state
	subscribers := c.collectSubscribers()
	c.mu.Unlock()

	c.logger.Warn("identity refresh failed, keeping last known state: %s", err)
	for _, fn := range subscribers {
		fn(state)
	}
}

// clear publishes the unauthenticated state, resets the selection flag and
// tears down sub-component caches.
func (c *Coordinator) clear(ctx context.Context, generation uint64) {
	if err := c.profiles.ResetSelectionMade(ctx); err != nil {
		c.logger.Warn("selection flag not reset on logout: %s", err)
	}
	if _, err := c.engine.Resolve(ctx, nil, nil, nil); err != nil {
		c.logger.Warn("entitlement reset failed: %s", err)
	}
	c.registry.Populate(nil)

	state := State{
		Generation:   generation,
		Subscription: NoSubscriptionSnapshot(c.now()),
		UpdatedAt:    c.now(),
	}
	if c.publish(state) {
		c.recordEvent(ctx, EventIdentityCleared, nil, nil)
	}
}

func (c *Coordinator) emitKidModeTransition(ctx context.Context, previous, current State) {
	wasKid := previous.Authenticated && previous.IsKidMode()
	isKid := current.IsKidMode()
	if wasKid == isKid {
		return
	}

	eventType := EventKidModeEntered
	metadata := map[string]any{}
	if isKid {
		if kid := current.Identity.KidProfile; kid != nil {
			metadata["kid_profile_id"] = kid.ID
			metadata["synthetic"] = kid.Synthetic
		}
	} else {
		eventType = EventKidModeExited
	}
	c.recordEvent(ctx, eventType, current.Identity, metadata)
}

func (c *Coordinator) recordEvent(ctx context.Context, eventType string, ident *Identity, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actorFromIdentity(ident),
		Metadata:   metadata,
		OccurredAt: c.now(),
	}
	if ident != nil {
		event.AccountID = ident.AccountID
	}
	if err := c.sink.Record(ctx, event); err != nil {
		c.logger.Warn("activity sink rejected %s event: %s", eventType, err)
	}
}

// collectSubscribers snapshots the callback list. Caller holds the lock.
func (c *Coordinator) collectSubscribers() []func(State) {
	out := make([]func(State), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		out = append(out, fn)
	}
	return out
}
