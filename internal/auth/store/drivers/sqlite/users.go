package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lodgebook/authcore/internal/auth/domain"
	"github.com/lodgebook/authcore/internal/auth/store"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, email, password_hash, two_factor_secret, two_factor_at, created_at, updated_at`

func (r *usersRepo) scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var (
		u      domain.User
		secret sql.NullString
		tfaAt  sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &secret, &tfaAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.TwoFactorSecret = mapNullStringPtr(secret)
	u.TwoFactorAt = mapNullTimePtr(tfaAt)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return r.scanUser(row)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
	return r.scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	ts := now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, two_factor_secret, two_factor_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		strings.ToLower(strings.TrimSpace(u.Email)),
		u.PasswordHash,
		mapOptionalString(u.TwoFactorSecret),
		mapOptionalTime(u.TwoFactorAt),
		ts,
		ts,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *usersRepo) UpdateTwoFactorSecret(ctx context.Context, userID string, secret string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET two_factor_secret = ?, updated_at = ? WHERE id = ?`,
		secret, now(), userID)
	return err
}

func (r *usersRepo) ActivateTwoFactor(ctx context.Context, userID string) error {
	ts := now()
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET two_factor_at = ?, updated_at = ? WHERE id = ?`,
		ts, ts, userID)
	return err
}

func (r *usersRepo) DeactivateTwoFactor(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET two_factor_at = NULL, two_factor_secret = NULL, updated_at = ? WHERE id = ?`,
		now(), userID)
	return err
}
