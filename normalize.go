package identity

import (
	"encoding/json"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// rawUser carries the identity fields common to every supported payload
// shape. Identifier aliases are accepted on input but never emitted; the
// canonical field is AccountID.
type rawUser struct {
	ID          string `json:"id,omitempty"`
	AccountID   string `json:"account_id,omitempty"`
	OliviuusID  string `json:"oliviuus_id,omitempty"`
	Role        string `json:"role,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

func (u rawUser) resolveAccountID() string {
	return firstNonEmpty(u.ID, u.AccountID, u.OliviuusID)
}

// Validate runs format rules on optional fields. Empty values pass; the
// required account identifier is checked after alias resolution.
func (u rawUser) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Email, is.Email),
		validation.Field(&u.AvatarURL, is.URL),
	)
}

type rawSession struct {
	ID         string     `json:"id,omitempty"`
	Token      string     `json:"token,omitempty"`
	DeviceName string     `json:"device_name,omitempty"`
	DeviceType string     `json:"device_type,omitempty"`
	IPAddress  string     `json:"ip_address,omitempty"`
	Location   string     `json:"location,omitempty"`
	LoginTime  *time.Time `json:"login_time,omitempty"`
	LogoutTime *time.Time `json:"logout_time,omitempty"`
	IsActive   *bool      `json:"is_active,omitempty"`
	IsCurrent  bool       `json:"is_current,omitempty"`
}

type rawFamilyMembership struct {
	OwnerID             string `json:"owner_id,omitempty"`
	MemberID            string `json:"member_id,omitempty"`
	MemberRole          string `json:"member_role,omitempty"`
	DashboardType       string `json:"dashboard_type,omitempty"`
	HasFamilyPlanAccess bool   `json:"has_family_plan_access,omitempty"`
}

type rawKidProfile struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	MaxAgeRating string `json:"max_age_rating,omitempty"`
	AvatarURL    string `json:"avatar_url,omitempty"`
}

// flatIdentityPayload is the legacy shape: identity fields and sessions at
// the payload root.
type flatIdentityPayload struct {
	rawUser
	Sessions            []rawSession         `json:"sessions,omitempty"`
	CurrentSessionToken string               `json:"current_session_token,omitempty"`
	Preferences         map[string]string    `json:"preferences,omitempty"`
	Family              *rawFamilyMembership `json:"family_membership,omitempty"`
	KidProfile          *rawKidProfile       `json:"kid_profile,omitempty"`
}

// nestedIdentityPayload is the current shape: a user sub-object beside
// sessions, subscription and kid_profiles collections. The subscription and
// candidate kid profiles are owned by their respective backends and are not
// folded into the Identity.
type nestedIdentityPayload struct {
	User                *rawUser             `json:"user,omitempty"`
	Sessions            []rawSession         `json:"sessions,omitempty"`
	CurrentSessionToken string               `json:"current_session_token,omitempty"`
	Preferences         map[string]string    `json:"preferences,omitempty"`
	Family              *rawFamilyMembership `json:"family_membership,omitempty"`
	ActiveKidProfile    *rawKidProfile       `json:"active_kid_profile,omitempty"`
}

// Normalize converts any supported raw identity payload into the canonical
// Identity. It is pure: equivalent inputs yield structurally equal outputs.
// Unrecognized or inconsistent shapes fail closed with ErrMalformedPayload;
// the coordinator decides whether that implies a logout.
func Normalize(payload json.RawMessage) (*Identity, error) {
	if len(payload) == 0 {
		return nil, ErrMalformedPayload.WithMetadata(map[string]any{
			"reason": "empty payload",
		})
	}

	var probe struct {
		User json.RawMessage `json:"user,omitempty"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, ErrMalformedPayload.WithMetadata(map[string]any{
			"reason": "invalid json",
			"cause":  err.Error(),
		})
	}

	if hasJSONValue(probe.User) {
		return normalizeNested(payload)
	}
	return normalizeFlat(payload)
}

func normalizeFlat(payload json.RawMessage) (*Identity, error) {
	var flat flatIdentityPayload
	if err := json.Unmarshal(payload, &flat); err != nil {
		return nil, ErrMalformedPayload.WithMetadata(map[string]any{
			"shape": "flat",
			"cause": err.Error(),
		})
	}

	return buildIdentity(
		flat.rawUser,
		flat.Sessions,
		flat.CurrentSessionToken,
		flat.Preferences,
		flat.Family,
		flat.KidProfile,
	)
}

func normalizeNested(payload json.RawMessage) (*Identity, error) {
	var nested nestedIdentityPayload
	if err := json.Unmarshal(payload, &nested); err != nil {
		return nil, ErrMalformedPayload.WithMetadata(map[string]any{
			"shape": "nested",
			"cause": err.Error(),
		})
	}
	if nested.User == nil {
		return nil, ErrMalformedPayload.WithMetadata(map[string]any{
			"shape":  "nested",
			"reason": "user object is not an object",
		})
	}

	return buildIdentity(
		*nested.User,
		nested.Sessions,
		nested.CurrentSessionToken,
		nested.Preferences,
		nested.Family,
		nested.ActiveKidProfile,
	)
}

func buildIdentity(
	user rawUser,
	sessions []rawSession,
	currentToken string,
	preferences map[string]string,
	family *rawFamilyMembership,
	kid *rawKidProfile,
) (*Identity, error) {
	if err := user.Validate(); err != nil {
		return nil, ErrMalformedPayload.WithMetadata(map[string]any{
			"reason":     "identity field validation failed",
			"validation": err.Error(),
		})
	}

	resolvedToken := currentToken
	if resolvedToken == "" {
		for _, s := range sessions {
			if s.IsCurrent && s.Token != "" {
				resolvedToken = s.Token
				break
			}
		}
	}

	accountID := user.resolveAccountID()
	if accountID == "" && resolvedToken != "" {
		// Backfill from the session token claims. Never trusted for
		// entitlement, only for identification of an otherwise valid payload.
		if claims, err := DecodeSessionToken(resolvedToken); err == nil {
			accountID = claims.UserID()
		}
	}
	if accountID == "" {
		return nil, ErrMalformedPayload.WithMetadata(map[string]any{
			"reason": "missing account identifier",
		})
	}

	role := RoleViewer
	if user.Role != "" {
		parsed, ok := ParseRole(user.Role)
		if !ok {
			return nil, ErrMalformedPayload.WithMetadata(map[string]any{
				"reason": "unknown role",
				"role":   user.Role,
			})
		}
		role = parsed
	}

	ident := &Identity{
		AccountID:           accountID,
		Role:                role,
		DisplayName:         firstNonEmpty(user.DisplayName, user.Name, user.Email),
		Email:               user.Email,
		AvatarURL:           user.AvatarURL,
		CurrentSessionToken: resolvedToken,
		Preferences:         clonePreferences(preferences),
		Family:              normalizeFamily(family),
		KidProfile:          normalizeKidProfile(kid),
	}

	if len(sessions) > 0 {
		ident.Sessions = make([]SessionRecord, 0, len(sessions))
		for _, s := range sessions {
			ident.Sessions = append(ident.Sessions, normalizeSession(s, resolvedToken))
		}
	}

	return ident, nil
}

func normalizeSession(s rawSession, currentToken string) SessionRecord {
	active := s.LogoutTime == nil
	if s.IsActive != nil {
		active = *s.IsActive
	}
	if currentToken != "" && s.Token == currentToken {
		active = true
	}

	return SessionRecord{
		ID:         s.ID,
		Token:      s.Token,
		DeviceName: s.DeviceName,
		DeviceType: s.DeviceType,
		IPAddress:  s.IPAddress,
		Location:   s.Location,
		LoginTime:  s.LoginTime,
		LogoutTime: s.LogoutTime,
		Active:     active,
	}
}

func normalizeFamily(f *rawFamilyMembership) *FamilyMembership {
	if f == nil {
		return nil
	}

	memberRole := RoleFamilyMember
	if f.MemberRole != "" {
		if parsed, ok := ParseRole(f.MemberRole); ok {
			memberRole = parsed
		}
	}

	dashboard := DashboardMain
	if f.DashboardType == string(DashboardKid) {
		dashboard = DashboardKid
	}

	return &FamilyMembership{
		OwnerID:             f.OwnerID,
		MemberID:            f.MemberID,
		MemberRole:          memberRole,
		DashboardType:       dashboard,
		HasFamilyPlanAccess: f.HasFamilyPlanAccess,
	}
}

func normalizeKidProfile(k *rawKidProfile) *KidProfileRef {
	if k == nil || k.ID == "" {
		return nil
	}
	return &KidProfileRef{
		ID:           k.ID,
		Name:         k.Name,
		MaxAgeRating: k.MaxAgeRating,
		AvatarURL:    k.AvatarURL,
	}
}

func clonePreferences(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func hasJSONValue(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
