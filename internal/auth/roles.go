package auth

// Admin role constants.
const (
	RoleViewer = "viewer"
	RoleAdmin  = "admin"
)

// AllAdminRoles returns all valid admin roles.
func AllAdminRoles() []string {
	return []string{RoleViewer, RoleAdmin}
}

// WriteRoles returns roles that can modify the catalog or run jobs.
func WriteRoles() []string {
	return []string{RoleAdmin}
}

// ValidRole reports whether role is a known admin role.
func ValidRole(role string) bool {
	for _, r := range AllAdminRoles() {
		if r == role {
			return true
		}
	}
	return false
}
