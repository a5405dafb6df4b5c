package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind tags a token's purpose. A token minted for one purpose must never be
// accepted where another is expected, so every decode names the kind it
// wants and anything else is rejected.
type Kind string

const (
	// KindAccess is a fully authenticated bearer token. It carries the
	// principal's role and login handle so request guards never need a
	// storage round-trip.
	KindAccess Kind = "access"

	// KindSecondFactorPending proves only that credentials were correct.
	// It carries no role claim and authorizes nothing except completing
	// the second-factor challenge for its subject.
	KindSecondFactorPending Kind = "second_factor_pending"

	// KindRefresh exchanges for a fresh access token. The principal is
	// re-resolved from storage on every exchange so role and deactivation
	// changes propagate within one refresh cycle.
	KindRefresh Kind = "refresh"
)

// Default TTLs for the three token kinds. Access tokens stay short so the
// role-staleness window stays short; the pending TTL bounds how long a
// half-finished login is worth anything to an attacker.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultPendingTTL = 10 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the signed claim set carried by every token this service mints.
type Claims struct {
	jwt.RegisteredClaims

	// Kind tags what the token is for: access, second_factor_pending,
	// or refresh.
	Kind Kind `json:"kind"`

	// Role is the principal's role at issuance time. Present only on
	// access tokens.
	Role string `json:"role,omitempty"`

	// Handle is the principal's login handle. Present only on access
	// tokens, mainly for log correlation downstream.
	Handle string `json:"handle,omitempty"`
}

// NewClaims builds a claim set for the given subject. Kind, timestamps, and
// expiry are stamped by Codec.Issue.
func NewClaims(subject string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
