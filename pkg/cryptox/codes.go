package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

// BackupCodeLength is the exact length of a recovery code. Time-based codes
// are six digits, so the two code spaces can never collide: a submitted code
// is routed by its length alone.
const BackupCodeLength = 8

// backupCodeCharset deliberately excludes lowercase letters; codes are
// case-normalized before comparison so users can type them either way.
const backupCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateBackupCode returns a single human-typeable recovery code drawn
// from a cryptographically secure source. An entropy failure is returned as
// an error and must abort the enclosing operation; weak recovery codes are
// worse than none.
func GenerateBackupCode() (string, error) {
	code := make([]byte, BackupCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(backupCodeCharset))))
		if err != nil {
			return "", fmt.Errorf("cryptox: generate backup code: %w", err)
		}
		code[i] = backupCodeCharset[n.Int64()]
	}
	return string(code), nil
}

// GenerateBackupCodes returns n distinct recovery codes.
func GenerateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for len(codes) < n {
		code, err := GenerateBackupCode()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// NormalizeBackupCode upper-cases and trims a user-submitted recovery code
// so storage lookups are case-insensitive.
func NormalizeBackupCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// FingerprintCode returns a deterministic SHA-256 fingerprint of a code,
// base64url encoded. Backup codes are stored only as fingerprints so a
// database leak does not reveal usable recovery codes.
func FingerprintCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
