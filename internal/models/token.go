package models

import "time"

// Token roles recognised by the scheduler. Any other role is treated as
// a guest for quota and priority purposes.
const (
	RoleAdmin     = "admin"
	RoleDeveloper = "developer"
	RoleGuest     = "guest"
)

// TokenInfo is the record the token database returns for an API token.
type TokenInfo struct {
	Role      string     `json:"role"`
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// IsExpired reports whether the token had passed its expiry before the
// given instant. Tokens without an expiry never expire.
func (t *TokenInfo) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}
