package models

import "time"

// TokenRecord holds a user's Google OAuth grant. Scopes is the set of
// permission URIs the user actually consented to; the authorization gate
// compares it against what a workflow's capabilities require.
type TokenRecord struct {
	UserID       string    `json:"user_id" db:"user_id"`
	AccessToken  string    `json:"access_token" db:"access_token"`
	RefreshToken string    `json:"refresh_token" db:"refresh_token"`
	Expiry       time.Time `json:"expiry" db:"expiry"`
	Scopes       []string  `json:"scopes"`
}

// HasScope reports whether the grant includes the given scope URI.
// Comparison is exact set membership.
func (t TokenRecord) HasScope(scope string) bool {
	for _, s := range t.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
