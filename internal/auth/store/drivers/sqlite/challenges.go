package sqlite

import (
	"context"

	"github.com/lodgebook/authcore/internal/auth/domain"
)

type challengesRepo struct {
	db dbtx
}

func (r *challengesRepo) Create(ctx context.Context, c domain.Challenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO challenges (id, kind, payload, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Kind, c.Payload, c.ExpiresAt, now())
	return err
}

// Consume deletes and returns the challenge in one statement. DELETE ..
// RETURNING is the compare-and-clear: of two racing consumers only one row
// scan succeeds, the other sees ErrNotFound. Expired rows are never returned.
func (r *challengesRepo) Consume(ctx context.Context, kind string, id string) (domain.Challenge, error) {
	var c domain.Challenge
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM challenges
		 WHERE id = ? AND kind = ? AND expires_at > ?
		 RETURNING id, kind, payload, expires_at, created_at`,
		id, kind, now()).Scan(&c.ID, &c.Kind, &c.Payload, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return domain.Challenge{}, mapNotFound(err)
	}
	return c, nil
}

func (r *challengesRepo) DeleteExpired(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM challenges WHERE expires_at <= ?`, now())
	return err
}
