package sqlite

import (
	"context"
)

type backupCodesRepo struct {
	q querier
}

func (r *backupCodesRepo) Create(ctx context.Context, principalID, codeHash string) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO backup_codes (principal_id, code_hash) VALUES (?, ?)`,
		principalID, codeHash)
	return mapConstraint(err)
}

// Consume removes the code in a single DELETE and reports whether a row was
// removed. Two concurrent requests racing on the same code see exactly one
// winner because the row can only be deleted once.
func (r *backupCodesRepo) Consume(ctx context.Context, principalID, codeHash string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE principal_id = ? AND code_hash = ?`,
		principalID, codeHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *backupCodesRepo) DeleteAll(ctx context.Context, principalID string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE principal_id = ?`, principalID)
	return err
}

func (r *backupCodesRepo) Count(ctx context.Context, principalID string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE principal_id = ?`, principalID,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
