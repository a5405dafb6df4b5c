package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/openshelf-dev/identity/internal/identity/domain"
	"github.com/openshelf-dev/identity/internal/identity/store"
)

type principalsRepo struct {
	q querier
}

const principalColumns = `id, username, email, password_hash, role, active,
	second_factor_enabled, last_login, login_count, deleted_at, created_at, updated_at`

func scanPrincipal(row *sql.Row) (domain.Principal, error) {
	var (
		p         domain.Principal
		role      string
		lastLogin sql.NullTime
		deletedAt sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.Username, &p.Email, &p.PasswordHash, &role, &p.Active,
		&p.SecondFactorEnabled, &lastLogin, &p.LoginCount, &deletedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Principal{}, mapNotFound(err)
	}

	p.Role = domain.Role(role)
	p.LastLogin = mapNullTimePtr(lastLogin)
	p.DeletedAt = mapNullTimePtr(deletedAt)
	return p, nil
}

func (r *principalsRepo) GetByID(ctx context.Context, id string) (domain.Principal, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = ?`, id)
	return scanPrincipal(row)
}

func (r *principalsRepo) GetByIdentifier(ctx context.Context, identifier string) (domain.Principal, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE username = ? OR email = ?`,
		identifier, identifier)
	return scanPrincipal(row)
}

func (r *principalsRepo) Create(ctx context.Context, p domain.Principal) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO principals (
			id, username, email, password_hash, role, active,
			second_factor_enabled, last_login, login_count, deleted_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Username, p.Email, p.PasswordHash, string(p.Role), p.Active,
		p.SecondFactorEnabled, mapOptionalTime(p.LastLogin), p.LoginCount,
		mapOptionalTime(p.DeletedAt), p.CreatedAt, p.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *principalsRepo) UpdatePasswordHash(ctx context.Context, principalID, newHash string) error {
	return r.exec(ctx,
		`UPDATE principals SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, time.Now().UTC(), principalID)
}

func (r *principalsRepo) RecordLogin(ctx context.Context, principalID string, at time.Time) error {
	return r.exec(ctx, `
		UPDATE principals
		SET last_login = ?, login_count = login_count + 1, updated_at = ?
		WHERE id = ?`,
		at, at, principalID)
}

func (r *principalsRepo) SetSecondFactorEnabled(ctx context.Context, principalID string, enabled bool) error {
	return r.exec(ctx,
		`UPDATE principals SET second_factor_enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().UTC(), principalID)
}

func (r *principalsRepo) SoftDelete(ctx context.Context, principalID string, at time.Time) error {
	return r.exec(ctx,
		`UPDATE principals SET deleted_at = ?, active = 0, updated_at = ? WHERE id = ?`,
		at, at, principalID)
}

func (r *principalsRepo) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM principals WHERE deleted_at IS NOT NULL AND deleted_at < ?`, cutoff)
	return err
}

// exec runs an UPDATE that must touch exactly one principal row.
func (r *principalsRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
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
