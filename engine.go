package identity

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// EntitlementParams identifies the actor for a subscription status check.
// Exactly one identifier is set, following the precedence kid profile >
// family member > account.
type EntitlementParams struct {
	AccountID      string `json:"account_id,omitempty"`
	KidProfileID   string `json:"kid_profile_id,omitempty"`
	FamilyMemberID string `json:"family_member_id,omitempty"`
}

// BuildEntitlementParams picks the identifier a status check should use.
// Synthetic kid profile ids are fabricated locally and never sent to the
// backend.
func BuildEntitlementParams(ident *Identity, family *FamilyMembership, kid *KidProfileRef) EntitlementParams {
	if kid != nil && !kid.Synthetic && kid.ID != "" {
		return EntitlementParams{KidProfileID: kid.ID}
	}
	if family != nil && family.MemberID != "" {
		return EntitlementParams{FamilyMemberID: family.MemberID}
	}
	if ident != nil {
		return EntitlementParams{AccountID: ident.AccountID}
	}
	return EntitlementParams{}
}

type engineInputs struct {
	ident  *Identity
	family *FamilyMembership
	kid    *KidProfileRef
}

// EntitlementEngine resolves and caches the subscription snapshot. Refreshes
// are guarded by a generation counter: a slow response started before a newer
// resolve is discarded instead of overwriting fresher data. Failed refreshes
// keep the previous snapshot and surface the error as a flag, so a network
// blip never upgrades or revokes access on its own.
type EntitlementEngine struct {
	backend  EntitlementBackend
	logger   Logger
	sink     ActivitySink
	now      Clock
	interval time.Duration
	onChange func(SubscriptionSnapshot)

	mu         sync.RWMutex
	snapshot   SubscriptionSnapshot
	refreshErr error
	inputs     engineInputs
	generation uint64

	stop     chan struct{}
	stopOnce sync.Once
}

// EngineOption configures an EntitlementEngine.
type EngineOption func(*EntitlementEngine)

// WithEngineLogger sets the engine's logger.
func WithEngineLogger(logger Logger) EngineOption {
	return func(e *EntitlementEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEngineClock injects the engine's time source.
func WithEngineClock(clock Clock) EngineOption {
	return func(e *EntitlementEngine) {
		if clock != nil {
			e.now = clock
		}
	}
}

// WithEngineInterval sets the periodic refresh interval.
func WithEngineInterval(interval time.Duration) EngineOption {
	return func(e *EntitlementEngine) {
		if interval > 0 {
			e.interval = interval
		}
	}
}

// WithEngineActivitySink attaches an audit sink for entitlement transitions.
func WithEngineActivitySink(sink ActivitySink) EngineOption {
	return func(e *EntitlementEngine) {
		e.sink = normalizeActivitySink(sink)
	}
}

// WithEngineOnChange registers a callback invoked when a periodic refresh
// changes the cached snapshot. Explicit Resolve calls never fire it; their
// callers consume the returned snapshot directly.
func WithEngineOnChange(fn func(SubscriptionSnapshot)) EngineOption {
	return func(e *EntitlementEngine) {
		e.onChange = fn
	}
}

// NewEntitlementEngine wires an engine over the entitlement backend.
func NewEntitlementEngine(backend EntitlementBackend, opts ...EngineOption) *EntitlementEngine {
	engine := &EntitlementEngine{
		backend:  backend,
		logger:   defLogger{},
		sink:     noopActivitySink{},
		now:      time.Now,
		interval: DefaultConfig().GetRefreshInterval(),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(engine)
	}
	engine.snapshot = NoSubscriptionSnapshot(engine.now())
	return engine
}

// Resolve recomputes the subscription snapshot for the given actor. Short
// circuit rules are checked first, in order; only when none applies does the
// engine reach the network:
//
//  1. no identity -> no_subscription, no network call
//  2. explicit kid profile -> fixed kid free access, no network call
//  3. family member with plan access -> inherited access, no network call
//  4. otherwise -> real time status check, falling back to the cached
//     current-subscription record
func (e *EntitlementEngine) Resolve(ctx context.Context, ident *Identity, family *FamilyMembership, kid *KidProfileRef) (SubscriptionSnapshot, error) {
	return e.resolve(ctx, ident, family, kid, false)
}

func (e *EntitlementEngine) resolve(ctx context.Context, ident *Identity, family *FamilyMembership, kid *KidProfileRef, notify bool) (SubscriptionSnapshot, error) {
	e.mu.Lock()
	e.generation++
	generation := e.generation
	e.inputs = engineInputs{ident: ident, family: family, kid: kid}
	e.mu.Unlock()

	now := e.now()

	if ident == nil {
		return e.apply(ctx, generation, NoSubscriptionSnapshot(now), nil, notify)
	}
	if kid != nil && !kid.Synthetic {
		return e.apply(ctx, generation, KidFreeSnapshot(now), nil, notify)
	}
	if family != nil && family.HasFamilyPlanAccess {
		return e.apply(ctx, generation, FamilyInheritedSnapshot(now), nil, notify)
	}

	params := BuildEntitlementParams(ident, family, kid)

	record, err := e.backend.GetRealTimeStatus(ctx, params)
	if err != nil {
		e.logger.Warn("real time status check failed, trying cached record: %s", err)
		record, err = e.backend.GetCurrentSubscription(ctx, params)
	}
	if err != nil {
		refreshErr := goerrors.Wrap(err, goerrors.CategoryOperation, "entitlement refresh failed").
			WithTextCode(textCodeEntitlementRefresh)
		return e.apply(ctx, generation, SubscriptionSnapshot{}, refreshErr, notify)
	}

	state := DeriveSubscriptionState(record, now)
	return e.apply(ctx, generation, snapshotFromRecord(record, state, now), nil, notify)
}

// apply installs the resolved snapshot unless a newer resolve has started in
// the meantime. On refresh failure the previous snapshot is kept and only the
// error flag changes. The onChange callback fires only for periodic
// refreshes; explicit resolves return the snapshot to their caller instead.
func (e *EntitlementEngine) apply(ctx context.Context, generation uint64, snap SubscriptionSnapshot, refreshErr error, notify bool) (SubscriptionSnapshot, error) {
	e.mu.Lock()
	if generation != e.generation {
		// a newer resolve superseded this one; discard the result
		current := e.snapshot
		e.mu.Unlock()
		return current, nil
	}

	previous := e.snapshot
	if refreshErr != nil {
		e.refreshErr = refreshErr
		e.mu.Unlock()
		e.logger.Error("entitlement refresh failed, keeping previous snapshot: %s", refreshErr)
		return previous, refreshErr
	}

	e.snapshot = snap
	e.refreshErr = nil
	changed := previous.Status != snap.Status || previous.Source != snap.Source
	onChange := e.onChange
	e.mu.Unlock()

	if changed {
		e.recordTransition(ctx, previous, snap)
		if notify && onChange != nil {
			onChange(snap)
		}
	}
	return snap, nil
}

func (e *EntitlementEngine) recordTransition(ctx context.Context, from, to SubscriptionSnapshot) {
	event := ActivityEvent{
		EventType: EventEntitlementRefreshed,
		FromState: from.Status,
		ToState:   to.Status,
		Metadata: map[string]any{
			"source": string(to.Source),
		},
		OccurredAt: e.now(),
	}
	if err := e.sink.Record(ctx, event); err != nil {
		e.logger.Warn("activity sink rejected entitlement event: %s", err)
	}
}

// Snapshot returns the current subscription snapshot.
func (e *EntitlementEngine) Snapshot() SubscriptionSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot
}

// LastError returns the refresh error flag, nil after a successful refresh.
func (e *EntitlementEngine) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.refreshErr
}

// CanAccessPremium reports whether the current snapshot grants premium
// access.
func (e *EntitlementEngine) CanAccessPremium() bool {
	return e.Snapshot().HasAccess()
}

// HasActiveSubscription reports an active paid subscription.
func (e *EntitlementEngine) HasActiveSubscription() bool {
	return e.Snapshot().IsActive()
}

// IsInGracePeriod reports a lapsed payment still within the grace window.
func (e *EntitlementEngine) IsInGracePeriod() bool {
	return e.Snapshot().IsInGracePeriod()
}

// IsScheduled reports a subscription that has not started yet.
func (e *EntitlementEngine) IsScheduled() bool {
	return e.Snapshot().IsScheduled()
}

// DaysRemaining reports whole days until the snapshot's relevant boundary.
func (e *EntitlementEngine) DaysRemaining() int {
	return e.Snapshot().DaysRemaining(e.now())
}

// Start launches the periodic stale-while-revalidate refresh loop. The loop
// keeps ticking while no identity is loaded; those ticks are cheap short
// circuit resolves that never touch the network.
func (e *EntitlementEngine) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stop:
				return
			case <-ticker.C:
				e.mu.RLock()
				inputs := e.inputs
				e.mu.RUnlock()
				if _, err := e.resolve(ctx, inputs.ident, inputs.family, inputs.kid, true); err != nil {
					e.logger.Debug("periodic entitlement refresh failed: %s", err)
				}
			}
		}
	}()
}

// Close stops the refresh loop. Safe to call more than once.
func (e *EntitlementEngine) Close() {
	e.stopOnce.Do(func() { close(e.stop) })
}
