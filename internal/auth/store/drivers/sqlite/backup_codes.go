package sqlite

import (
	"context"
	"database/sql"
	"errors"
)

type backupCodesRepo struct {
	db dbtx
}

func (r *backupCodesRepo) Create(ctx context.Context, userID string, codeHash string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO backup_codes (user_id, code_hash, created_at) VALUES (?, ?, ?)`,
		userID, codeHash, now())
	return err
}

func (r *backupCodesRepo) Verify(ctx context.Context, userID string, codeHash string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM backup_codes WHERE user_id = ? AND code_hash = ?`,
		userID, codeHash).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *backupCodesRepo) Delete(ctx context.Context, userID string, codeHash string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE user_id = ? AND code_hash = ?`,
		userID, codeHash)
	return err
}

func (r *backupCodesRepo) DeleteAll(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE user_id = ?`, userID)
	return err
}

func (r *backupCodesRepo) Count(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}
