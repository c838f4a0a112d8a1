package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DashboardType distinguishes a family member's landing experience.
type DashboardType string

const (
	// DashboardMain is the unrestricted family dashboard.
	DashboardMain DashboardType = "main"
	// DashboardKid flags a family member restricted to the kid experience.
	DashboardKid DashboardType = "kid"
)

// FamilyMembership is the subordinate relationship to another account's
// plan. Immutable snapshot per fetch.
type FamilyMembership struct {
	OwnerID             string        `json:"owner_id,omitempty"`
	MemberID            string        `json:"member_id,omitempty"`
	MemberRole          Role          `json:"member_role,omitempty"`
	DashboardType       DashboardType `json:"dashboard_type,omitempty"`
	HasFamilyPlanAccess bool          `json:"has_family_plan_access,omitempty"`
}

// KidProfileRef is the currently active restricted profile. At most one is
// active at a time. Synthetic refs are fabricated client side when a family
// membership declares a kid dashboard but no explicit profile exists.
type KidProfileRef struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	MaxAgeRating string `json:"max_age_rating,omitempty"`
	AvatarURL    string `json:"avatar_url,omitempty"`
	Synthetic    bool   `json:"is_family_member_synthetic,omitempty"`
}

// ProfileType is the kind of selectable profile.
type ProfileType string

const (
	ProfileTypeMain ProfileType = "main"
	ProfileTypeKid  ProfileType = "kid"
)

// Profile is a selectable viewing profile. The main profile is synthesized
// from the identity and is never returned by the backend.
type Profile struct {
	ID           string      `json:"id,omitempty"`
	Name         string      `json:"name,omitempty"`
	Type         ProfileType `json:"type,omitempty"`
	MaxAgeRating string      `json:"max_age_rating,omitempty"`
	AvatarURL    string      `json:"avatar_url,omitempty"`
}

// SessionRecord is one device session known to the backend.
type SessionRecord struct {
	ID         string     `json:"id,omitempty"`
	Token      string     `json:"token,omitempty"`
	DeviceName string     `json:"device_name,omitempty"`
	DeviceType string     `json:"device_type,omitempty"`
	IPAddress  string     `json:"ip_address,omitempty"`
	Location   string     `json:"location,omitempty"`
	LoginTime  *time.Time `json:"login_time,omitempty"`
	LogoutTime *time.Time `json:"logout_time,omitempty"`
	Active     bool       `json:"is_active,omitempty"`
}

// Identity is the canonical, normalized representation of the authenticated
// actor. Exactly one Identity is live at a time; it is replaced wholesale on
// each successful fetch and cleared on logout.
type Identity struct {
	AccountID           string            `json:"account_id,omitempty"`
	Role                Role              `json:"role,omitempty"`
	DisplayName         string            `json:"display_name,omitempty"`
	Email               string            `json:"email,omitempty"`
	AvatarURL           string            `json:"avatar_url,omitempty"`
	Sessions            []SessionRecord   `json:"sessions,omitempty"`
	CurrentSessionToken string            `json:"current_session_token,omitempty"`
	Preferences         map[string]string `json:"preferences,omitempty"`
	Family              *FamilyMembership `json:"family_membership,omitempty"`
	KidProfile          *KidProfileRef    `json:"kid_profile,omitempty"`
}

// IsKidMode is derived, never stored: an explicit active kid profile, or a
// family membership flagged kid-dashboard.
func (i *Identity) IsKidMode() bool {
	if i == nil {
		return false
	}
	if i.KidProfile != nil {
		return true
	}
	return i.Family != nil && i.Family.DashboardType == DashboardKid
}

// CurrentSession finds the session record matching CurrentSessionToken.
func (i *Identity) CurrentSession() (SessionRecord, bool) {
	if i == nil || i.CurrentSessionToken == "" {
		return SessionRecord{}, false
	}
	for _, s := range i.Sessions {
		if s.Token == i.CurrentSessionToken {
			return s, true
		}
	}
	return SessionRecord{}, false
}

// Clone returns a deep copy safe to publish to subscribers.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	if len(i.Sessions) > 0 {
		out.Sessions = make([]SessionRecord, len(i.Sessions))
		copy(out.Sessions, i.Sessions)
	}
	if len(i.Preferences) > 0 {
		out.Preferences = make(map[string]string, len(i.Preferences))
		for k, v := range i.Preferences {
			out.Preferences[k] = v
		}
	}
	if i.Family != nil {
		fam := *i.Family
		out.Family = &fam
	}
	if i.KidProfile != nil {
		kid := *i.KidProfile
		out.KidProfile = &kid
	}
	return &out
}

// ProfileSelectionState reports whether the profile selector must be shown.
// Made is durable and persists across reloads independent of Required; once
// true the selector stays hidden until the flag is reset on logout.
type ProfileSelectionState struct {
	Required   bool      `json:"required"`
	Made       bool      `json:"made"`
	Candidates []Profile `json:"candidates,omitempty"`
}

// Preference is the bun model backing the durable key-value store.
type Preference struct {
	bun.BaseModel `bun:"table:preferences,alias:pref"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Key           string     `bun:"key,notnull,unique" json:"key,omitempty"`
	Value         string     `bun:"value" json:"value,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}
