package domain

// Role is the role claim carried by an access token.
type Role string

// Roles with a dashboard area of their own. Tokens may carry other roles;
// those decode fine but match no area.
const (
	RoleAdmin    Role = "admin"
	RoleEditor   Role = "editor"
	RoleReporter Role = "reporter"
)

// ParseRole takes the claim value as is; areas compare roles exactly. It
// returns false for an empty role.
func ParseRole(raw string) (Role, bool) {
	return Role(raw), raw != ""
}

// String returns the role's claim value.
func (r Role) String() string { return string(r) }
