package identity_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) identity.Clock {
	return func() time.Time { return t }
}

func viewerIdentity() *identity.Identity {
	return &identity.Identity{
		AccountID:   "acc-1",
		Role:        identity.RoleViewer,
		DisplayName: "Sam",
	}
}

func TestEngineResolve_NoIdentityShortCircuits(t *testing.T) {
	backend := &MockEntitlementBackend{}
	engine := identity.NewEntitlementEngine(backend, identity.WithEngineClock(fixedClock(derivationNow)))

	snap, err := engine.Resolve(context.Background(), nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, identity.StateNoSubscription, snap.Status)
	assert.Equal(t, identity.SourceNone, snap.Source)
	assert.False(t, engine.CanAccessPremium())
	backend.AssertNotCalled(t, "GetRealTimeStatus", mock.Anything, mock.Anything)
}

func TestEngineResolve_KidProfileShortCircuits(t *testing.T) {
	backend := &MockEntitlementBackend{}
	engine := identity.NewEntitlementEngine(backend, identity.WithEngineClock(fixedClock(derivationNow)))

	kid := &identity.KidProfileRef{ID: "kid-1", Name: "Mina"}
	snap, err := engine.Resolve(context.Background(), viewerIdentity(), nil, kid)
	require.NoError(t, err)

	assert.Equal(t, identity.SourceKidFree, snap.Source)
	assert.True(t, snap.HasAccess())
	assert.Contains(t, snap.PlanFeatures, "kids_catalog")
	backend.AssertNotCalled(t, "GetRealTimeStatus", mock.Anything, mock.Anything)
	backend.AssertNotCalled(t, "GetCurrentSubscription", mock.Anything, mock.Anything)
}

func TestEngineResolve_FamilyPlanShortCircuits(t *testing.T) {
	backend := &MockEntitlementBackend{}
	engine := identity.NewEntitlementEngine(backend, identity.WithEngineClock(fixedClock(derivationNow)))

	family := &identity.FamilyMembership{
		OwnerID:             "acc-0",
		MemberID:            "acc-1",
		HasFamilyPlanAccess: true,
	}
	snap, err := engine.Resolve(context.Background(), viewerIdentity(), family, nil)
	require.NoError(t, err)

	assert.Equal(t, identity.SourceFamilyInherited, snap.Source)
	assert.True(t, snap.HasAccess())
	backend.AssertNotCalled(t, "GetRealTimeStatus", mock.Anything, mock.Anything)
}

func TestEngineResolve_NetworkPath(t *testing.T) {
	backend := &MockEntitlementBackend{}
	backend.On("GetRealTimeStatus", mock.Anything, identity.EntitlementParams{AccountID: "acc-1"}).
		Return(&identity.RawSubscriptionRecord{
			Status:       "active",
			PlanName:     "premium",
			PlanFeatures: []string{"premium_catalog"},
			EndDate:      datePtr(derivationNow.Add(240 * time.Hour)),
		}, nil)

	engine := identity.NewEntitlementEngine(backend, identity.WithEngineClock(fixedClock(derivationNow)))

	snap, err := engine.Resolve(context.Background(), viewerIdentity(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, identity.StateActive, snap.Status)
	assert.Equal(t, identity.SourceNetwork, snap.Source)
	assert.Equal(t, "premium", snap.PlanName)
	assert.True(t, engine.HasActiveSubscription())
	assert.Equal(t, 10, engine.DaysRemaining())
	backend.AssertExpectations(t)
}

func TestEngineResolve_FallsBackToCachedRecord(t *testing.T) {
	backend := &MockEntitlementBackend{}
	backend.On("GetRealTimeStatus", mock.Anything, mock.Anything).
		Return(nil, errors.New("status endpoint down"))
	backend.On("GetCurrentSubscription", mock.Anything, mock.Anything).
		Return(&identity.RawSubscriptionRecord{Status: "trialing"}, nil)

	engine := identity.NewEntitlementEngine(backend, identity.WithEngineClock(fixedClock(derivationNow)))

	snap, err := engine.Resolve(context.Background(), viewerIdentity(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, identity.StateTrialing, snap.Status)
	assert.True(t, snap.IsTrialing())
	backend.AssertExpectations(t)
}

func TestEngineResolve_FailureKeepsPreviousSnapshot(t *testing.T) {
	backend := &MockEntitlementBackend{}
	backend.On("GetRealTimeStatus", mock.Anything, mock.Anything).
		Return(&identity.RawSubscriptionRecord{Status: "active"}, nil).Once()

	engine := identity.NewEntitlementEngine(backend, identity.WithEngineClock(fixedClock(derivationNow)))

	_, err := engine.Resolve(context.Background(), viewerIdentity(), nil, nil)
	require.NoError(t, err)
	require.True(t, engine.CanAccessPremium())

	backend.On("GetRealTimeStatus", mock.Anything, mock.Anything).
		Return(nil, errors.New("network down"))
	backend.On("GetCurrentSubscription", mock.Anything, mock.Anything).
		Return(nil, errors.New("network down"))

	snap, err := engine.Resolve(context.Background(), viewerIdentity(), nil, nil)
	require.Error(t, err)

	// a transient failure never revokes access on its own
	assert.Equal(t, identity.StateActive, snap.Status)
	assert.True(t, engine.CanAccessPremium())
	assert.Error(t, engine.LastError())
}

func TestEngineResolve_ErrorFlagClearsOnSuccess(t *testing.T) {
	backend := &MockEntitlementBackend{}
	backend.On("GetRealTimeStatus", mock.Anything, mock.Anything).
		Return(nil, errors.New("down")).Once()
	backend.On("GetCurrentSubscription", mock.Anything, mock.Anything).
		Return(nil, errors.New("down")).Once()

	engine := identity.NewEntitlementEngine(backend, identity.WithEngineClock(fixedClock(derivationNow)))

	_, err := engine.Resolve(context.Background(), viewerIdentity(), nil, nil)
	require.Error(t, err)
	require.Error(t, engine.LastError())

	backend.On("GetRealTimeStatus", mock.Anything, mock.Anything).
		Return(&identity.RawSubscriptionRecord{Status: "active"}, nil)

	_, err = engine.Resolve(context.Background(), viewerIdentity(), nil, nil)
	require.NoError(t, err)
	assert.NoError(t, engine.LastError())
}

func TestEngineResolve_ParamsPrecedence(t *testing.T) {
	family := &identity.FamilyMembership{MemberID: "member-1"}
	kid := &identity.KidProfileRef{ID: "kid-1"}
	syntheticKid := &identity.KidProfileRef{ID: "kid-synth", Synthetic: true}

	assert.Equal(t,
		identity.EntitlementParams{KidProfileID: "kid-1"},
		identity.BuildEntitlementParams(viewerIdentity(), family, kid))

	// synthetic ids are local fabrications and never reach the backend
	assert.Equal(t,
		identity.EntitlementParams{FamilyMemberID: "member-1"},
		identity.BuildEntitlementParams(viewerIdentity(), family, syntheticKid))

	assert.Equal(t,
		identity.EntitlementParams{AccountID: "acc-1"},
		identity.BuildEntitlementParams(viewerIdentity(), nil, nil))
}

// blockingEntitlementBackend parks GetRealTimeStatus until released.
type blockingEntitlementBackend struct {
	entered  chan struct{}
	release  chan struct{}
	record   *identity.RawSubscriptionRecord
	enterOne sync.Once
}

func (b *blockingEntitlementBackend) GetRealTimeStatus(ctx context.Context, _ identity.EntitlementParams) (*identity.RawSubscriptionRecord, error) {
	b.enterOne.Do(func() { close(b.entered) })
	<-b.release
	return b.record, nil
}

func (b *blockingEntitlementBackend) GetCurrentSubscription(context.Context, identity.EntitlementParams) (*identity.RawSubscriptionRecord, error) {
	return nil, errors.New("unused")
}

func TestEngineResolve_StaleResponseDiscarded(t *testing.T) {
	backend := &blockingEntitlementBackend{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		record:  &identity.RawSubscriptionRecord{Status: "expired"},
	}
	engine := identity.NewEntitlementEngine(backend, identity.WithEngineClock(fixedClock(derivationNow)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = engine.Resolve(context.Background(), viewerIdentity(), nil, nil)
	}()

	<-backend.entered

	// a newer resolve completes while the old network call is in flight
	kid := &identity.KidProfileRef{ID: "kid-1"}
	snap, err := engine.Resolve(context.Background(), viewerIdentity(), nil, kid)
	require.NoError(t, err)
	require.Equal(t, identity.SourceKidFree, snap.Source)

	close(backend.release)
	<-done

	// the slow expired response lost the race and must not be applied
	assert.Equal(t, identity.SourceKidFree, engine.Snapshot().Source)
	assert.True(t, engine.CanAccessPremium())
}

func TestEngine_RecordsTransitions(t *testing.T) {
	backend := &MockEntitlementBackend{}
	backend.On("GetRealTimeStatus", mock.Anything, mock.Anything).
		Return(&identity.RawSubscriptionRecord{Status: "active"}, nil)

	sink := &RecordingActivitySink{}
	engine := identity.NewEntitlementEngine(backend,
		identity.WithEngineClock(fixedClock(derivationNow)),
		identity.WithEngineActivitySink(sink),
	)

	_, err := engine.Resolve(context.Background(), viewerIdentity(), nil, nil)
	require.NoError(t, err)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, identity.EventEntitlementRefreshed, events[0].EventType)
	assert.Equal(t, identity.StateNoSubscription, events[0].FromState)
	assert.Equal(t, identity.StateActive, events[0].ToState)
}
