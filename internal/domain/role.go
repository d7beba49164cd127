package domain

// Role is the canonical ranked organization role. The original system also
// spoke of a "CREATOR" role in one code path; that was a naming artifact for
// MEMBER and is not modelled separately.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// Rank orders roles for comparison: higher means more authority.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	default:
		return 0
	}
}

// Valid reports whether r is one of the canonical roles.
func (r Role) Valid() bool { return r.Rank() > 0 }

// Grantable reports whether r may be handed out through an invite or a role
// update. OWNER is only ever created with the organization itself.
func (r Role) Grantable() bool { return r == RoleAdmin || r == RoleMember }

// ManagesMembers reports whether r may invite, remove, and re-role members.
func (r Role) ManagesMembers() bool { return r == RoleOwner || r == RoleAdmin }
