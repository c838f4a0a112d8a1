package identity

import (
	"math"
	"time"
)

// SubscriptionState is the resolved access state of a subscription.
type SubscriptionState string

const (
	StateNoSubscription SubscriptionState = "no_subscription"
	StateScheduled      SubscriptionState = "scheduled"
	StateActive         SubscriptionState = "active"
	StateGracePeriod    SubscriptionState = "grace_period"
	StateTrialing       SubscriptionState = "trialing"
	StatePastDue        SubscriptionState = "past_due"
	StateCancelled      SubscriptionState = "cancelled"
	StateExpired        SubscriptionState = "expired"
	StateUnknown        SubscriptionState = "unknown"
)

// SnapshotSource records which resolution path populated a snapshot. Gating
// decisions on paid content require SourceNetwork unless a short-circuit
// rule granted access.
type SnapshotSource string

const (
	SourceNone            SnapshotSource = "none"
	SourceNetwork         SnapshotSource = "network"
	SourceFamilyInherited SnapshotSource = "familyInherited"
	SourceKidFree         SnapshotSource = "kidFree"
)

// RawValidationFlags are the nested validation flags some backend records
// carry instead of a status field.
type RawValidationFlags struct {
	IsExpired         bool `json:"is_expired,omitempty"`
	IsScheduled       bool `json:"is_scheduled,omitempty"`
	IsCurrentlyActive bool `json:"is_currently_active,omitempty"`
	IsInGracePeriod   bool `json:"is_in_grace_period,omitempty"`
}

// RawSubscriptionRecord is the heterogeneous subscription record returned by
// the entitlement backend. Any combination of fields may be present;
// DeriveSubscriptionState reconciles them.
type RawSubscriptionRecord struct {
	RealTimeStatus string              `json:"real_time_status,omitempty"`
	Validation     *RawValidationFlags `json:"validation,omitempty"`
	Status         string              `json:"status,omitempty"`
	StartDate      *time.Time          `json:"start_date,omitempty"`
	EndDate        *time.Time          `json:"end_date,omitempty"`
	CancelledAt    *time.Time          `json:"cancelled_at,omitempty"`
	PlanName       string              `json:"plan_name,omitempty"`
	PlanFeatures   []string            `json:"plan_features,omitempty"`
}

// statusTable maps coarse backend status strings to resolved states.
// Unknown strings pass through unchanged.
var statusTable = map[string]SubscriptionState{
	"active":    StateActive,
	"trialing":  StateTrialing,
	"past_due":  StateGracePeriod,
	"cancelled": StateCancelled,
	"expired":   StateExpired,
}

// DeriveSubscriptionState resolves a raw record against "now". Rules are
// evaluated top to bottom, first applicable wins:
//
//  1. no record -> no_subscription
//  2. explicit real_time_status -> used verbatim
//  3. nested validation flags -> expired > scheduled > active > grace_period
//  4. coarse status string -> mapped through statusTable
//  5. date arithmetic on start/end/cancelled
//  6. nothing matches -> unknown
func DeriveSubscriptionState(record *RawSubscriptionRecord, now time.Time) SubscriptionState {
	if record == nil {
		return StateNoSubscription
	}

	if record.RealTimeStatus != "" {
		return SubscriptionState(record.RealTimeStatus)
	}

	if v := record.Validation; v != nil {
		switch {
		case v.IsExpired:
			return StateExpired
		case v.IsScheduled:
			return StateScheduled
		case v.IsCurrentlyActive:
			return StateActive
		case v.IsInGracePeriod:
			return StateGracePeriod
		}
		// flags present but all false: fall through to the next rule
	}

	if record.Status != "" {
		if mapped, ok := statusTable[record.Status]; ok {
			return mapped
		}
		return SubscriptionState(record.Status)
	}

	if record.StartDate != nil || record.EndDate != nil || record.CancelledAt != nil {
		if record.StartDate != nil && now.Before(*record.StartDate) {
			return StateScheduled
		}
		if record.EndDate != nil && now.After(*record.EndDate) {
			return StateExpired
		}
		if record.CancelledAt != nil && !record.CancelledAt.After(now) {
			return StateCancelled
		}
		return StateActive
	}

	return StateUnknown
}

// SubscriptionSnapshot is the atomically replaced entitlement value
// published to consumers. Never partially mutated.
type SubscriptionSnapshot struct {
	Status       SubscriptionState `json:"status"`
	StartDate    *time.Time        `json:"start_date,omitempty"`
	EndDate      *time.Time        `json:"end_date,omitempty"`
	CancelledAt  *time.Time        `json:"cancelled_at,omitempty"`
	PlanName     string            `json:"plan_name,omitempty"`
	PlanFeatures []string          `json:"plan_features,omitempty"`
	Source       SnapshotSource    `json:"source"`
	FetchedAt    time.Time         `json:"fetched_at"`
}

// HasAccess reports whether the snapshot grants premium access: an
// active/grace/trialing state, or a short-circuit source that granted access
// without a network check.
func (s SubscriptionSnapshot) HasAccess() bool {
	switch s.Source {
	case SourceKidFree, SourceFamilyInherited:
		return true
	}
	switch s.Status {
	case StateActive, StateGracePeriod, StateTrialing:
		return true
	default:
		return false
	}
}

// IsActive reports a currently active paid subscription.
func (s SubscriptionSnapshot) IsActive() bool { return s.Status == StateActive }

// IsInGracePeriod reports a lapsed payment still within the grace window.
func (s SubscriptionSnapshot) IsInGracePeriod() bool { return s.Status == StateGracePeriod }

// IsScheduled reports a subscription that has not started yet.
func (s SubscriptionSnapshot) IsScheduled() bool { return s.Status == StateScheduled }

// IsTrialing reports an active trial.
func (s SubscriptionSnapshot) IsTrialing() bool { return s.Status == StateTrialing }

// DaysRemaining computes whole days until the relevant boundary: start date
// for scheduled subscriptions, end date for active/grace/trialing ones.
// Values are clamped to zero; expired and stateless snapshots report zero.
func (s SubscriptionSnapshot) DaysRemaining(now time.Time) int {
	var boundary *time.Time

	switch s.Status {
	case StateScheduled:
		boundary = s.StartDate
	case StateActive, StateGracePeriod, StateTrialing:
		boundary = s.EndDate
	default:
		return 0
	}

	if boundary == nil {
		return 0
	}

	days := int(math.Ceil(boundary.Sub(now).Hours() / 24))
	if days < 0 {
		return 0
	}
	return days
}

// Default plan features granted by the short-circuit resolution paths. The
// family defaults are deliberately generous: a subordinate member inherits
// the owner's plan without a per-member feature lookup.
var (
	kidFreeFeatures = []string{"kids_catalog", "offline_downloads"}

	familyPlanFeatures = []string{
		"premium_catalog",
		"hd_streaming",
		"offline_downloads",
		"simultaneous_streams",
	}
)

// NoSubscriptionSnapshot is the empty entitlement value: no identity or no
// subscription record.
func NoSubscriptionSnapshot(now time.Time) SubscriptionSnapshot {
	return SubscriptionSnapshot{
		Status:    StateNoSubscription,
		Source:    SourceNone,
		FetchedAt: now,
	}
}

// KidFreeSnapshot grants the fixed free kid-profile access. A restricted
// profile never needs its own paid subscription.
func KidFreeSnapshot(now time.Time) SubscriptionSnapshot {
	return SubscriptionSnapshot{
		Status:       StateActive,
		PlanName:     "kid_free",
		PlanFeatures: append([]string(nil), kidFreeFeatures...),
		Source:       SourceKidFree,
		FetchedAt:    now,
	}
}

// FamilyInheritedSnapshot grants access inherited from the plan owner.
func FamilyInheritedSnapshot(now time.Time) SubscriptionSnapshot {
	return SubscriptionSnapshot{
		Status:       StateActive,
		PlanName:     "family",
		PlanFeatures: append([]string(nil), familyPlanFeatures...),
		Source:       SourceFamilyInherited,
		FetchedAt:    now,
	}
}

func snapshotFromRecord(record *RawSubscriptionRecord, state SubscriptionState, now time.Time) SubscriptionSnapshot {
	snap := SubscriptionSnapshot{
		Status:    state,
		Source:    SourceNetwork,
		FetchedAt: now,
	}
	if record != nil {
		snap.StartDate = record.StartDate
		snap.EndDate = record.EndDate
		snap.CancelledAt = record.CancelledAt
		snap.PlanName = record.PlanName
		if len(record.PlanFeatures) > 0 {
			snap.PlanFeatures = append([]string(nil), record.PlanFeatures...)
		}
	}
	return snap
}
