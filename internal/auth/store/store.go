package store

import (
	"context"
	"errors"
	"time"

	"github.com/lodgebook/authcore/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable.
type Store interface {
	Users() Users
	WebAuthnCredentials() WebAuthnCredentials
	BackupCodes() BackupCodes
	SessionTokens() SessionTokens
	AbuseCounters() AbuseCounters
	Challenges() Challenges
	AuditEvents() AuditEvents

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail is the lookup used on every password and WebAuthn login.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateTwoFactorSecret sets the TOTP secret without activating it.
	UpdateTwoFactorSecret(ctx context.Context, userID string, secret string) error

	// ActivateTwoFactor marks two-factor as active (sets the activation timestamp).
	ActivateTwoFactor(ctx context.Context, userID string) error

	// DeactivateTwoFactor clears the activation timestamp and secret.
	DeactivateTwoFactor(ctx context.Context, userID string) error
}

type WebAuthnCredentials interface {
	// ListByUser returns all registered credentials for a user, oldest first.
	ListByUser(ctx context.Context, userID string) ([]domain.WebAuthnCredential, error)

	// GetByCredentialID resolves the single credential matching a raw
	// credential ID. Credential IDs are globally unique across users.
	GetByCredentialID(ctx context.Context, credentialID []byte) (domain.WebAuthnCredential, error)

	// Create registers a new credential. Fails with ErrAlreadyExists when the
	// credential ID is already registered.
	Create(ctx context.Context, c domain.WebAuthnCredential) error

	// UpdateSignCount persists the authenticator's counter after a verified
	// assertion.
	UpdateSignCount(ctx context.Context, credentialID []byte, signCount uint32) error

	// Delete removes a registered credential.
	Delete(ctx context.Context, userID string, id string) error
}

type BackupCodes interface {
	// Create stores a backup code fingerprint for a user.
	Create(ctx context.Context, userID string, codeHash string) error

	// Verify checks whether a backup code fingerprint exists for a user.
	Verify(ctx context.Context, userID string, codeHash string) (bool, error)

	// Delete removes a specific backup code after use.
	Delete(ctx context.Context, userID string, codeHash string) error

	// DeleteAll removes all backup codes for a user (regeneration, 2FA removal).
	DeleteAll(ctx context.Context, userID string) error

	// Count returns the number of unused backup codes for a user.
	Count(ctx context.Context, userID string) (int, error)
}

type SessionTokens interface {
	// Create stores a new session token record (hash only).
	Create(ctx context.Context, t domain.SessionToken) error

	// GetByHash returns a token by its fingerprint, excluding expired rows.
	GetByHash(ctx context.Context, hash string) (domain.SessionToken, error)

	// Delete removes a token by its fingerprint (logout).
	Delete(ctx context.Context, hash string) error

	// DeleteAllForUser removes every token of a user (e.g. password rotation).
	DeleteAllForUser(ctx context.Context, userID string) error

	// DeleteExpired is housekeeping.
	DeleteExpired(ctx context.Context) error
}

type AbuseCounters interface {
	// Increment bumps the channel counter by one in a single atomic
	// statement, starting a fresh window when the previous one has lapsed.
	// Concurrent increments must never lose updates.
	Increment(ctx context.Context, channel string, window time.Duration) error

	// Get returns the counter for a channel, or ErrNotFound.
	Get(ctx context.Context, channel string) (domain.AbuseCounter, error)

	// Reset deletes the counter for a channel.
	Reset(ctx context.Context, channel string) error

	// DeleteStale drops counters whose window lapsed before cutoff (housekeeping).
	DeleteStale(ctx context.Context, cutoff time.Time) error
}

type Challenges interface {
	// Create parks an encrypted challenge payload.
	Create(ctx context.Context, c domain.Challenge) error

	// Consume atomically removes and returns a live challenge. The removal
	// and the read are one statement (compare-and-clear): of two racing
	// consumers exactly one sees the payload, the other gets ErrNotFound.
	// Expired challenges are ErrNotFound.
	Consume(ctx context.Context, kind string, id string) (domain.Challenge, error)

	// DeleteExpired is housekeeping.
	DeleteExpired(ctx context.Context) error
}

type AuditEvents interface {
	// Record appends an audit event. Events are never mutated or deleted.
	Record(ctx context.Context, e domain.AuditEvent) error

	// ListRecent returns the newest events first, up to limit.
	ListRecent(ctx context.Context, limit int) ([]domain.AuditEvent, error)
}
