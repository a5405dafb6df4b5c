package domain

import (
	"github.com/openshelf-dev/identity/pkg/jwtx"
)

// TokenGrant is what a successful authentication step returns. After a
// normal login it holds an access and a refresh token; when a second factor
// is still outstanding it holds only the pending token and its kind.
type TokenGrant struct {
	Token        string    `json:"token"`
	TokenKind    jwtx.Kind `json:"token_kind"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresIn    int64     `json:"expires_in"` // seconds until the primary token expires
}

// Pending reports whether the grant is a half-finished login awaiting the
// second-factor challenge.
func (g TokenGrant) Pending() bool {
	return g.TokenKind == jwtx.KindSecondFactorPending
}
