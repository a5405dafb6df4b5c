package domain

import "time"

// SecondFactorSecret is one principal's TOTP enrollment. At most one active
// secret exists per principal at any time; disabling the second factor
// deactivates the row rather than deleting it.
type SecondFactorSecret struct {
	ID          string
	PrincipalID string
	Secret      string // base32 shared secret
	Active      bool
	LastUsedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SecondFactorEnrollment is the first phase of enrollment: a fresh secret
// and its provisioning URI, returned to the caller without persisting
// anything. Nothing is committed until the caller proves possession by
// presenting this exact secret alongside a valid code.
type SecondFactorEnrollment struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	Issuer          string `json:"issuer"`
	Account         string `json:"account"`
}

// SecondFactorStatus summarizes a principal's second-factor state.
type SecondFactorStatus struct {
	Enabled         bool       `json:"enabled"`
	BackupCodesLeft int        `json:"backup_codes_left"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`
}
