package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid is the single outcome for every decode failure: bad
// signature, expired, wrong kind, wrong issuer, malformed structure. The
// caller must not be able to distinguish why decoding failed, so no more
// specific error ever crosses this package's boundary.
var ErrTokenInvalid = errors.New("jwtx: invalid token")

// Codec issues and validates kinded tokens with a process-wide signing key.
// Both operations are pure functions of the key and the wall clock; a Codec
// is safe for concurrent use.
type Codec struct {
	signer Signer
	issuer string
}

// NewCodec builds a Codec around the given signer. Every issued token
// carries the issuer claim, and decode rejects tokens from anyone else.
func NewCodec(signer Signer, issuer string) (*Codec, error) {
	if err := signer.Validate(); err != nil {
		return nil, err
	}
	if issuer == "" {
		return nil, errors.New("jwtx: issuer must not be empty")
	}
	return &Codec{signer: signer, issuer: issuer}, nil
}

// Signer exposes the codec's signing key, principally for health checks.
func (c *Codec) Signer() Signer {
	return c.signer
}

// Issue stamps kind, issuer, timestamps, a ttl-bounded expiry, and a random
// jti onto the claim set, then signs it.
func (c *Codec) Issue(claims Claims, kind Kind, ttl time.Duration) (string, error) {
	now := time.Now().UTC()

	claims.Kind = kind
	claims.Issuer = c.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	claims.ID = NewJTI()

	return c.signer.Sign(claims)
}

// Decode verifies the token's signature and expiry, then checks that its
// kind tag equals expected. Any failure at any stage collapses into
// ErrTokenInvalid.
func (c *Codec) Decode(token string, expected Kind) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.signer.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
	)

	parsed, err := parser.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return c.signer.VerificationKey(), nil
	})
	if err != nil {
		return Claims{}, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrTokenInvalid
	}
	if claims.Kind != expected {
		return Claims{}, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return Claims{}, ErrTokenInvalid
	}

	return *claims, nil
}
