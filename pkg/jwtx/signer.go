package jwtx

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer signs claim sets and exposes the key material needed to verify
// them. Implementations are safe for concurrent use after construction.
type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
	VerificationKey() any
	Validate() error
}

// NewSignerEdDSA loads an Ed25519 private key from PEM bytes (PKCS8).
func NewSignerEdDSA(pemKey []byte) (Signer, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM for Ed25519 key")
	}
	if block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("jwtx: expected PRIVATE KEY, got %q (Ed25519 requires PKCS8)", block.Type)
	}

	priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
	}

	key, ok := priv.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwtx: not an Ed25519 private key")
	}

	return &eddsaSigner{key: key, pub: key.Public().(ed25519.PublicKey)}, nil
}

// NewEphemeralSignerEdDSA generates a fresh Ed25519 keypair. Tokens signed
// with an ephemeral key become invalid on restart, which is acceptable for
// dev and test deployments.
func NewEphemeralSignerEdDSA() (Signer, error) {
	pub, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("jwtx: generate Ed25519 key: %w", err)
	}
	return &eddsaSigner{key: key, pub: pub}, nil
}

type eddsaSigner struct {
	key ed25519.PrivateKey
	pub ed25519.PublicKey
}

func (s *eddsaSigner) Alg() string { return jwt.SigningMethodEdDSA.Alg() }

func (s *eddsaSigner) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.key)
}

func (s *eddsaSigner) VerificationKey() any { return s.pub }

func (s *eddsaSigner) Validate() error {
	if len(s.key) != ed25519.PrivateKeySize || len(s.pub) != ed25519.PublicKeySize {
		return errors.New("jwtx: invalid Ed25519 key size")
	}
	return nil
}

// NewSignerHS256 wraps a shared secret for HMAC-SHA256 signing. Only for
// deployments where issuer and verifier are the same process.
func NewSignerHS256(secret []byte) (Signer, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwtx: HS256 secret must be at least 32 bytes")
	}
	return &hs256Signer{secret: secret}, nil
}

type hs256Signer struct {
	secret []byte
}

func (s *hs256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }

func (s *hs256Signer) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *hs256Signer) VerificationKey() any { return s.secret }

func (s *hs256Signer) Validate() error {
	if len(s.secret) < 32 {
		return errors.New("jwtx: HS256 secret too short")
	}
	return nil
}
