package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openshelf-dev/identity/internal/identity/domain"
	"github.com/openshelf-dev/identity/internal/identity/metrics"
	"github.com/openshelf-dev/identity/internal/identity/store"
	"github.com/openshelf-dev/identity/pkg/cryptox"
	"github.com/openshelf-dev/identity/pkg/idx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// backupCodeCount is the size of a freshly generated backup-code set.
	backupCodeCount = 10

	// totpSkew is the clock tolerance, in 30s steps, accepted on either
	// side of the current step.
	totpSkew = 1

	// totpCodeLength is the length of a time-based code. Backup codes are
	// eight characters, so a submitted code's length alone decides which
	// verification path runs.
	totpCodeLength = 6
)

var (
	ErrInvalidSecondFactor        = errors.New("invalid_second_factor")
	ErrSecondFactorNotEnabled     = errors.New("second_factor_not_enabled")
	ErrSecondFactorAlreadyEnabled = errors.New("second_factor_already_enabled")
)

// SecondFactorService owns TOTP secrets and backup codes: enrollment,
// challenge verification, disable, and regeneration. Verification paths
// collapse every failure into ErrInvalidSecondFactor so a caller cannot
// learn which check failed.
type SecondFactorService struct {
	Store  store.Store
	Issuer string // issuer label in provisioning URIs, e.g. "OpenShelf"
}

// BeginEnrollment generates a fresh secret and provisioning URI without
// touching storage. Nothing commits until CompleteEnrollment proves the
// caller's authenticator actually holds this secret.
func (s *SecondFactorService) BeginEnrollment(ctx context.Context, principal domain.Principal) (domain.SecondFactorEnrollment, error) {
	if principal.SecondFactorEnabled {
		return domain.SecondFactorEnrollment{}, ErrSecondFactorAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: principal.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.SecondFactorEnrollment{}, fmt.Errorf("generate totp key: %w", err)
	}

	return domain.SecondFactorEnrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		Issuer:          s.Issuer,
		Account:         principal.Email,
	}, nil
}

// CompleteEnrollment verifies one valid code against the presented secret
// BEFORE any write, then persists the secret, a fresh backup-code set, and
// the principal's flag in one transaction. A stale or wrong code leaves the
// principal exactly as it was.
func (s *SecondFactorService) CompleteEnrollment(ctx context.Context, principal domain.Principal, secret, code string) ([]string, error) {
	if principal.SecondFactorEnabled {
		return nil, ErrSecondFactorAlreadyEnabled
	}
	if secret == "" || !s.verifyTOTP(secret, code) {
		return nil, ErrInvalidSecondFactor
	}

	backupCodes, err := cryptox.GenerateBackupCodes(backupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}

	now := time.Now().UTC()
	record := domain.SecondFactorSecret{
		ID:          idx.New().String(),
		PrincipalID: principal.ID,
		Secret:      secret,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		// A previous, deactivated enrollment may still exist; the schema
		// allows only one active row per principal.
		if err := tx.SecondFactorSecrets().DeactivateForPrincipal(ctx, principal.ID); err != nil {
			return fmt.Errorf("deactivate stale secret: %w", err)
		}
		if err := tx.SecondFactorSecrets().Create(ctx, record); err != nil {
			return fmt.Errorf("store secret: %w", err)
		}
		if err := tx.BackupCodes().DeleteAll(ctx, principal.ID); err != nil {
			return fmt.Errorf("clear stale backup codes: %w", err)
		}
		for _, c := range backupCodes {
			if err := tx.BackupCodes().Create(ctx, principal.ID, cryptox.FingerprintCode(c)); err != nil {
				return fmt.Errorf("store backup code: %w", err)
			}
		}
		if err := tx.Principals().SetSecondFactorEnabled(ctx, principal.ID, true); err != nil {
			return fmt.Errorf("enable second factor: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return backupCodes, nil
}

// VerifyChallenge checks a submitted code against the principal's active
// secret. Six-digit codes take the TOTP path; eight-character codes take
// the backup-code path and are consumed on success. Anything else, and any
// mismatch, is ErrInvalidSecondFactor.
func (s *SecondFactorService) VerifyChallenge(ctx context.Context, principal domain.Principal, code string) error {
	if !principal.SecondFactorEnabled {
		return ErrSecondFactorNotEnabled
	}

	secret, err := s.Store.SecondFactorSecrets().GetActiveByPrincipal(ctx, principal.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidSecondFactor
		}
		return err
	}

	normalized := cryptox.NormalizeBackupCode(code)
	switch len(normalized) {
	case totpCodeLength:
		if !s.verifyTOTP(secret.Secret, normalized) {
			metrics.SecondFactorVerificationsTotal.WithLabelValues("totp", "rejected").Inc()
			return ErrInvalidSecondFactor
		}
		if err := s.Store.SecondFactorSecrets().TouchLastUsed(ctx, secret.ID, time.Now().UTC()); err != nil {
			return err
		}
		metrics.SecondFactorVerificationsTotal.WithLabelValues("totp", "ok").Inc()
		return nil

	case cryptox.BackupCodeLength:
		consumed, err := s.Store.BackupCodes().Consume(ctx, principal.ID, cryptox.FingerprintCode(normalized))
		if err != nil {
			return err
		}
		if !consumed {
			metrics.SecondFactorVerificationsTotal.WithLabelValues("backup_code", "rejected").Inc()
			return ErrInvalidSecondFactor
		}
		metrics.SecondFactorVerificationsTotal.WithLabelValues("backup_code", "ok").Inc()
		return nil

	default:
		return ErrInvalidSecondFactor
	}
}

// Disable requires both the current password and a currently valid code;
// losing either alone must not be enough to strip the other factor. The
// secret is deactivated, not deleted.
func (s *SecondFactorService) Disable(ctx context.Context, principal domain.Principal, password, code string) error {
	if !principal.SecondFactorEnabled {
		return ErrSecondFactorNotEnabled
	}
	if err := cryptox.VerifyPassword(password, principal.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}
	if err := s.VerifyChallenge(ctx, principal, code); err != nil {
		return err
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAll(ctx, principal.ID); err != nil {
			return fmt.Errorf("delete backup codes: %w", err)
		}
		if err := tx.SecondFactorSecrets().DeactivateForPrincipal(ctx, principal.ID); err != nil {
			return fmt.Errorf("deactivate secret: %w", err)
		}
		if err := tx.Principals().SetSecondFactorEnabled(ctx, principal.ID, false); err != nil {
			return fmt.Errorf("clear second factor flag: %w", err)
		}
		return nil
	})
}

// RegenerateBackupCodes replaces the entire backup-code set after a valid
// current code. The old set is gone regardless of how many codes it had
// left.
func (s *SecondFactorService) RegenerateBackupCodes(ctx context.Context, principal domain.Principal, code string) ([]string, error) {
	if err := s.VerifyChallenge(ctx, principal, code); err != nil {
		return nil, err
	}

	backupCodes, err := cryptox.GenerateBackupCodes(backupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAll(ctx, principal.ID); err != nil {
			return fmt.Errorf("delete old backup codes: %w", err)
		}
		for _, c := range backupCodes {
			if err := tx.BackupCodes().Create(ctx, principal.ID, cryptox.FingerprintCode(c)); err != nil {
				return fmt.Errorf("store backup code: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return backupCodes, nil
}

// Status reports the principal's second-factor state for the profile UI.
func (s *SecondFactorService) Status(ctx context.Context, principal domain.Principal) (domain.SecondFactorStatus, error) {
	if !principal.SecondFactorEnabled {
		return domain.SecondFactorStatus{}, nil
	}

	secret, err := s.Store.SecondFactorSecrets().GetActiveByPrincipal(ctx, principal.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SecondFactorStatus{}, nil
		}
		return domain.SecondFactorStatus{}, err
	}

	count, err := s.Store.BackupCodes().Count(ctx, principal.ID)
	if err != nil {
		return domain.SecondFactorStatus{}, err
	}

	return domain.SecondFactorStatus{
		Enabled:         true,
		BackupCodesLeft: count,
		LastUsedAt:      secret.LastUsedAt,
	}, nil
}

// verifyTOTP validates a six-digit code with clock-skew tolerance. The
// underlying comparison is constant-time.
func (s *SecondFactorService) verifyTOTP(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
