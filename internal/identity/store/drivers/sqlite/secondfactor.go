package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/openshelf-dev/identity/internal/identity/domain"
	"github.com/openshelf-dev/identity/internal/identity/store"
)

type secondFactorSecretsRepo struct {
	q querier
}

func (r *secondFactorSecretsRepo) GetActiveByPrincipal(ctx context.Context, principalID string) (domain.SecondFactorSecret, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, principal_id, secret, active, last_used_at, created_at, updated_at
		FROM second_factor_secrets
		WHERE principal_id = ? AND active = 1`,
		principalID)

	var (
		s        domain.SecondFactorSecret
		lastUsed sql.NullTime
	)
	err := row.Scan(&s.ID, &s.PrincipalID, &s.Secret, &s.Active, &lastUsed, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.SecondFactorSecret{}, mapNotFound(err)
	}
	s.LastUsedAt = mapNullTimePtr(lastUsed)
	return s, nil
}

func (r *secondFactorSecretsRepo) Create(ctx context.Context, s domain.SecondFactorSecret) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO second_factor_secrets (
			id, principal_id, secret, active, last_used_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.PrincipalID, s.Secret, s.Active, mapOptionalTime(s.LastUsedAt),
		s.CreatedAt, s.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *secondFactorSecretsRepo) DeactivateForPrincipal(ctx context.Context, principalID string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE second_factor_secrets
		SET active = 0, updated_at = ?
		WHERE principal_id = ? AND active = 1`,
		time.Now().UTC(), principalID)
	return err
}

func (r *secondFactorSecretsRepo) TouchLastUsed(ctx context.Context, secretID string, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE second_factor_secrets SET last_used_at = ?, updated_at = ? WHERE id = ?`,
		at, at, secretID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *secondFactorSecretsRepo) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM second_factor_secrets WHERE active = 0 AND updated_at < ?`, cutoff)
	return err
}
