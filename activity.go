package identity

import (
	"context"
	"time"
)

// Activity event types emitted by the resolution pipeline.
const (
	EventIdentityResolved       = "identity.resolved"
	EventIdentityCleared        = "identity.cleared"
	EventKidModeEntered         = "identity.kidmode.entered"
	EventKidModeExited          = "identity.kidmode.exited"
	EventProfileSelected        = "identity.profile.selected"
	EventEntitlementRefreshed   = "entitlement.refreshed"
	EventSessionTerminated      = "session.terminated"
	EventSessionTerminatedOther = "session.terminated.others"
)

// ActorRef identifies who triggered an event.
type ActorRef struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

// ActivityEvent is one audit record. FromState and ToState are populated on
// entitlement transitions only.
type ActivityEvent struct {
	EventType  string            `json:"event_type"`
	Actor      ActorRef          `json:"actor,omitempty"`
	AccountID  string            `json:"account_id,omitempty"`
	FromState  SubscriptionState `json:"from_state,omitempty"`
	ToState    SubscriptionState `json:"to_state,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ActivitySink receives audit events. Recording is best effort: a failing
// sink is logged and never blocks resolution.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivityFunc adapts a function to the ActivitySink interface.
type ActivityFunc func(ctx context.Context, event ActivityEvent) error

func (f ActivityFunc) Record(ctx context.Context, event ActivityEvent) error {
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error { return nil }

func normalizeActivitySink(sink ActivitySink) ActivitySink {
	if sink == nil {
		return noopActivitySink{}
	}
	return sink
}

func actorFromIdentity(ident *Identity) ActorRef {
	if ident == nil {
		return ActorRef{}
	}
	actorType := "account"
	if ident.IsKidMode() {
		actorType = "kid_profile"
	}
	return ActorRef{
		ID:   ident.AccountID,
		Type: actorType,
		Name: ident.DisplayName,
	}
}
