package sqlite

import (
	"context"
	"strings"

	"github.com/lodgebook/authcore/internal/auth/domain"
	"github.com/lodgebook/authcore/internal/auth/store"
)

type webauthnRepo struct {
	db dbtx
}

const credentialColumns = `id, user_id, credential_id, public_key, aaguid, sign_count, transports, label, created_at`

func scanCredential(row interface{ Scan(...any) error }) (domain.WebAuthnCredential, error) {
	var (
		c          domain.WebAuthnCredential
		transports string
	)
	err := row.Scan(&c.ID, &c.UserID, &c.CredentialID, &c.PublicKey, &c.AAGUID,
		&c.SignCount, &transports, &c.Label, &c.CreatedAt)
	if err != nil {
		return domain.WebAuthnCredential{}, mapNotFound(err)
	}
	if transports != "" {
		c.Transports = strings.Fields(transports)
	}
	return c, nil
}

func (r *webauthnRepo) ListByUser(ctx context.Context, userID string) ([]domain.WebAuthnCredential, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM webauthn_credentials WHERE user_id = ? ORDER BY created_at ASC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []domain.WebAuthnCredential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func (r *webauthnRepo) GetByCredentialID(ctx context.Context, credentialID []byte) (domain.WebAuthnCredential, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM webauthn_credentials WHERE credential_id = ?`,
		credentialID)
	return scanCredential(row)
}

func (r *webauthnRepo) Create(ctx context.Context, c domain.WebAuthnCredential) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webauthn_credentials
		 (id, user_id, credential_id, public_key, aaguid, sign_count, transports, label, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.CredentialID, c.PublicKey, c.AAGUID,
		c.SignCount, strings.Join(c.Transports, " "), c.Label, now())
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *webauthnRepo) UpdateSignCount(ctx context.Context, credentialID []byte, signCount uint32) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE webauthn_credentials SET sign_count = ? WHERE credential_id = ?`,
		signCount, credentialID)
	return err
}

func (r *webauthnRepo) Delete(ctx context.Context, userID string, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM webauthn_credentials WHERE id = ? AND user_id = ?`,
		id, userID)
	return err
}
