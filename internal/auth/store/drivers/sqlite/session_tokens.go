package sqlite

import (
	"context"
	"database/sql"

	"github.com/lodgebook/authcore/internal/auth/domain"
)

type sessionTokensRepo struct {
	db dbtx
}

func (r *sessionTokensRepo) Create(ctx context.Context, t domain.SessionToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_tokens (id, user_id, token_hash, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, mapOptionalTime(t.ExpiresAt), now())
	return err
}

func (r *sessionTokensRepo) GetByHash(ctx context.Context, hash string) (domain.SessionToken, error) {
	var (
		t         domain.SessionToken
		expiresAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, created_at
		 FROM session_tokens
		 WHERE token_hash = ? AND (expires_at IS NULL OR expires_at > ?)`,
		hash, now()).Scan(&t.ID, &t.UserID, &t.TokenHash, &expiresAt, &t.CreatedAt)
	if err != nil {
		return domain.SessionToken{}, mapNotFound(err)
	}
	t.ExpiresAt = mapNullTimePtr(expiresAt)
	return t, nil
}

func (r *sessionTokensRepo) Delete(ctx context.Context, hash string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM session_tokens WHERE token_hash = ?`, hash)
	return err
}

func (r *sessionTokensRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM session_tokens WHERE user_id = ?`, userID)
	return err
}

func (r *sessionTokensRepo) DeleteExpired(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM session_tokens WHERE expires_at IS NOT NULL AND expires_at <= ?`, now())
	return err
}
