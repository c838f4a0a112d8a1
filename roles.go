package identity

// Role is the actor's role within the account.
type Role string

const (
	// RoleKid is a restricted viewing context.
	RoleKid Role = "kid"
	// RoleFamilyMember is a subordinate member of another account's plan.
	RoleFamilyMember Role = "family_member"
	// RoleViewer is the unrestricted primary account holder.
	RoleViewer Role = "viewer"
	// RoleManager administers the plan (profiles, members, sessions).
	RoleManager Role = "manager"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleKid, RoleFamilyMember, RoleViewer, RoleManager:
		return true
	default:
		return false
	}
}

// IsRestricted reports whether the role is limited to the kid catalog.
func (r Role) IsRestricted() bool {
	return r == RoleKid
}

// CanSelectProfiles reports whether this role may switch between profiles.
func (r Role) CanSelectProfiles() bool {
	switch r {
	case RoleViewer, RoleManager:
		return true
	default:
		return false
	}
}

// CanManageSessions reports whether this role may terminate device sessions.
func (r Role) CanManageSessions() bool {
	switch r {
	case RoleFamilyMember, RoleViewer, RoleManager:
		return true
	default:
		return false
	}
}

// CanManagePlan reports whether this role may change the subscription plan.
func (r Role) CanManagePlan() bool {
	return r == RoleManager
}

// IsAtLeast checks if this role meets the minimum required level
func (r Role) IsAtLeast(minRole Role) bool {
	roleHierarchy := map[Role]int{
		RoleKid:          0,
		RoleFamilyMember: 1,
		RoleViewer:       2,
		RoleManager:      3,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []Role {
	return []Role{
		RoleKid,
		RoleFamilyMember,
		RoleViewer,
		RoleManager,
	}
}

// ParseRole safely parses a string into a Role type
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}
