package identity_test

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/mock"
)

// MockAuthBackend implements identity.AuthBackend
type MockAuthBackend struct {
	mock.Mock
}

func (m *MockAuthBackend) GetCurrentIdentity(ctx context.Context) (json.RawMessage, error) {
	args := m.Called(ctx)
	payload, _ := args.Get(0).(json.RawMessage)
	return payload, args.Error(1)
}

func (m *MockAuthBackend) GetSessionMode(ctx context.Context) (*identity.SessionMode, error) {
	args := m.Called(ctx)
	mode, _ := args.Get(0).(*identity.SessionMode)
	return mode, args.Error(1)
}

// MockModeSwitcherBackend adds the ModeSwitcher capability
type MockModeSwitcherBackend struct {
	MockAuthBackend
}

func (m *MockModeSwitcherBackend) SetSessionMode(ctx context.Context, kidProfileID string) error {
	args := m.Called(ctx, kidProfileID)
	return args.Error(0)
}

// MockProfileBackend implements identity.ProfileBackend
type MockProfileBackend struct {
	mock.Mock
}

func (m *MockProfileBackend) IsSelectionRequired(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockProfileBackend) ListAvailableProfiles(ctx context.Context) ([]identity.Profile, error) {
	args := m.Called(ctx)
	profiles, _ := args.Get(0).([]identity.Profile)
	return profiles, args.Error(1)
}

// MockEntitlementBackend implements identity.EntitlementBackend
type MockEntitlementBackend struct {
	mock.Mock
}

func (m *MockEntitlementBackend) GetRealTimeStatus(ctx context.Context, params identity.EntitlementParams) (*identity.RawSubscriptionRecord, error) {
	args := m.Called(ctx, params)
	record, _ := args.Get(0).(*identity.RawSubscriptionRecord)
	return record, args.Error(1)
}

func (m *MockEntitlementBackend) GetCurrentSubscription(ctx context.Context, params identity.EntitlementParams) (*identity.RawSubscriptionRecord, error) {
	args := m.Called(ctx, params)
	record, _ := args.Get(0).(*identity.RawSubscriptionRecord)
	return record, args.Error(1)
}

// MockSessionBackend implements identity.SessionBackend
type MockSessionBackend struct {
	mock.Mock
}

func (m *MockSessionBackend) Terminate(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *MockSessionBackend) TerminateAllOthers(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// RecordingActivitySink collects events for assertions.
type RecordingActivitySink struct {
	mu     sync.Mutex
	events []identity.ActivityEvent
}

func (s *RecordingActivitySink) Record(_ context.Context, event identity.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *RecordingActivitySink) Events() []identity.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]identity.ActivityEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *RecordingActivitySink) EventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.events))
	for _, event := range s.events {
		types = append(types, event.EventType)
	}
	return types
}
