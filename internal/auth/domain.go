package auth

import "time"

// APIToken is a long-lived credential issued to a principal. The secret
// half is stored only as a bcrypt hash; the raw value is shown once at
// issue time.
type APIToken struct {
	ID          string
	PrincipalID int64
	Name        string
	SecretHash  string
	IsActive    bool
	LastUsedAt  *time.Time
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

// Expired reports whether the token is past its expiry, if it has one.
func (t APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}
