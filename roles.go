package session

// UserRole is the marketplace role carried by the credential and user record.
type UserRole = string

const (
	// RoleGuest can only browse public listings.
	RoleGuest UserRole = "guest"
	// RoleCustomer posts jobs and rates providers.
	RoleCustomer UserRole = "customer"
	// RoleProvider bids on jobs and maintains a portfolio.
	RoleProvider UserRole = "provider"
	// RoleAdmin moderates listings and accounts.
	RoleAdmin UserRole = "admin"
)

// IsValid checks if the status is one of the predefined account statuses.
func (s UserStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusPending, StatusSuspended, StatusDisabled:
		return true
	default:
		return false
	}
}

// ValidRole reports whether the role is one of the predefined roles.
func ValidRole(r UserRole) bool {
	switch r {
	case RoleGuest, RoleCustomer, RoleProvider, RoleAdmin:
		return true
	default:
		return false
	}
}

// RoleAtLeast checks if role meets the minimum required level.
func RoleAtLeast(role, minRole UserRole) bool {
	roleHierarchy := map[UserRole]int{
		RoleGuest:    0,
		RoleCustomer: 1,
		RoleProvider: 2,
		RoleAdmin:    3,
	}

	currentLevel, exists := roleHierarchy[role]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// ParseRole safely parses a string into a UserRole.
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, ValidRole(role)
}
