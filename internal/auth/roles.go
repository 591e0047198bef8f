package auth

// Role is a caller's privilege level. Recipients can act on their own
// incidents; admins see every site and run maintenance.
type Role string

const (
	RoleViewer    Role = "viewer"
	RoleRecipient Role = "recipient"
	RoleAdmin     Role = "admin"
)

var roleRanks = map[Role]int{
	RoleViewer:    1,
	RoleRecipient: 2,
	RoleAdmin:     3,
}

// NormalizeRole parses a claim value.
func NormalizeRole(value string) (Role, bool) {
	role := Role(value)
	if _, ok := roleRanks[role]; !ok {
		return "", false
	}
	return role, true
}

// Satisfies reports whether r is at least required.
func (r Role) Satisfies(required Role) bool {
	return roleRanks[r] > 0 && roleRanks[r] >= roleRanks[required]
}
