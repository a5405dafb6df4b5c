package domain

import "time"

// Principal is an account capable of authenticating. The business layer
// calls this a "user"; the authority only cares about credentials, role,
// and second-factor state.
type Principal struct {
	ID                  string
	Username            string
	Email               string
	PasswordHash        string // argon2id PHC encoded
	Role                Role
	Active              bool
	SecondFactorEnabled bool
	LastLogin           *time.Time
	LoginCount          int
	DeletedAt           *time.Time // soft deletion; the authority treats a deleted principal as absent
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CanAuthenticate reports whether the principal may begin a login attempt.
// Inactive and soft-deleted principals fail identically to an unknown
// identifier, so the distinction never leaks across the trust boundary.
func (p Principal) CanAuthenticate() bool {
	return p.Active && p.DeletedAt == nil
}
