package store

import (
	"context"
	"errors"
	"time"

	"github.com/openshelf-dev/identity/internal/identity/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today,
// postgres later) implement this. Sub-repositories keep concerns tidy and
// let tests fake one repo at a time.
type Store interface {
	Principals() Principals
	SecondFactorSecrets() SecondFactorSecrets
	BackupCodes() BackupCodes

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing on nil and
	// rolling back on error. This is the recommended way to run
	// multi-step mutations (enrollment commit, disable, regeneration).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Principals interface {
	// GetByID returns a principal by id, including soft-deleted rows;
	// callers decide whether deletion matters for their operation.
	GetByID(ctx context.Context, id string) (domain.Principal, error)

	// GetByIdentifier resolves a login handle, accepting either the
	// username or the email address.
	GetByIdentifier(ctx context.Context, identifier string) (domain.Principal, error)

	// Create inserts a new principal (id is provided by the app via ULID).
	// Returns ErrAlreadyExists when the username or email is taken.
	Create(ctx context.Context, p domain.Principal) error

	// UpdatePasswordHash sets the password_hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, principalID, newHash string) error

	// RecordLogin stamps last_login and increments login_count.
	RecordLogin(ctx context.Context, principalID string, at time.Time) error

	// SetSecondFactorEnabled flips the second-factor flag.
	SetSecondFactorEnabled(ctx context.Context, principalID string, enabled bool) error

	// SoftDelete stamps deleted_at. The authority never hard-deletes.
	SoftDelete(ctx context.Context, principalID string, at time.Time) error

	// PurgeDeletedBefore hard-deletes principals soft-deleted before the
	// cutoff (housekeeping).
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) error
}

type SecondFactorSecrets interface {
	// GetActiveByPrincipal returns the principal's single active secret.
	GetActiveByPrincipal(ctx context.Context, principalID string) (domain.SecondFactorSecret, error)

	// Create inserts a new secret row. The schema enforces at most one
	// active secret per principal; callers deactivate the old one first,
	// inside the same transaction.
	Create(ctx context.Context, s domain.SecondFactorSecret) error

	// DeactivateForPrincipal marks every active secret of the principal
	// inactive. Disable keeps the row for audit; nothing is deleted.
	DeactivateForPrincipal(ctx context.Context, principalID string) error

	// TouchLastUsed stamps last_used_at after a successful verification.
	TouchLastUsed(ctx context.Context, secretID string, at time.Time) error

	// DeleteInactiveBefore removes inactive secrets older than the cutoff
	// (housekeeping).
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) error
}

type BackupCodes interface {
	// Create stores one backup-code fingerprint for a principal.
	Create(ctx context.Context, principalID, codeHash string) error

	// Consume atomically removes the code if present and reports whether
	// it existed. A single DELETE makes double-spending a code from two
	// concurrent requests impossible.
	Consume(ctx context.Context, principalID, codeHash string) (bool, error)

	// DeleteAll removes every backup code for a principal (disable and
	// regeneration paths).
	DeleteAll(ctx context.Context, principalID string) error

	// Count returns the number of unused codes remaining.
	Count(ctx context.Context, principalID string) (int, error)
}
