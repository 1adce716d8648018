package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lodgebook/authcore/internal/auth/store"
)

// txStore is the transaction-scoped variant of Store. Nested transactions
// are rejected rather than silently flattened.
type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Users() store.Users                             { return &usersRepo{db: t.tx} }
func (t *txStore) WebAuthnCredentials() store.WebAuthnCredentials { return &webauthnRepo{db: t.tx} }
func (t *txStore) BackupCodes() store.BackupCodes                 { return &backupCodesRepo{db: t.tx} }
func (t *txStore) SessionTokens() store.SessionTokens             { return &sessionTokensRepo{db: t.tx} }
func (t *txStore) AbuseCounters() store.AbuseCounters             { return &abuseCountersRepo{db: t.tx} }
func (t *txStore) Challenges() store.Challenges                   { return &challengesRepo{db: t.tx} }
func (t *txStore) AuditEvents() store.AuditEvents                 { return &auditEventsRepo{db: t.tx} }

func (t *txStore) ApplyMigrations() error {
	return errors.New("sqlite: migrations cannot run inside a transaction")
}

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	return nil, errors.New("sqlite: nested transactions are not supported")
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return errors.New("sqlite: nested transactions are not supported")
}

func (t *txStore) Close() error { return nil }

func (t *txStore) Ping(ctx context.Context) error { return nil }
