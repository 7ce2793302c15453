package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the structured payload embedded in the marketplace credential.
// The client never verifies the signature (the backend is the verifier); it
// only inspects structure, expiry, and role claims.
type Claims struct {
	jwt.RegisteredClaims
	UID         string   `json:"uid,omitempty"`
	UserRole    string   `json:"role,omitempty"`
	Permissions []string `json:"perms,omitempty"`
}

// Subject returns the subject claim.
func (c *Claims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID, falling back to the subject claim.
func (c *Claims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Role returns the global role claim.
func (c *Claims) Role() string {
	return c.UserRole
}

// HasPermission checks the permission list claim.
func (c *Claims) HasPermission(permission string) bool {
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// IsAtLeast checks if the claimed role is at least the minimum required role.
func (c *Claims) IsAtLeast(minRole UserRole) bool {
	return RoleAtLeast(c.UserRole, minRole)
}

// Expires returns the expiration time, zero when the claim is absent.
func (c *Claims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// Issued returns the issued-at time, zero when the claim is absent.
func (c *Claims) Issued() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
