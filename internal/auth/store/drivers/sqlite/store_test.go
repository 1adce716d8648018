package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lodgebook/authcore/internal/auth/domain"
	"github.com/lodgebook/authcore/internal/auth/store"
	"github.com/lodgebook/authcore/pkg/idx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "auth.db") + "?_pragma=busy_timeout(5000)"
	s, err := NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func seedUser(t *testing.T, s *Store, email string) domain.User {
	t.Helper()

	u := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func TestUsersRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "alice@example.com")

	got, err := s.Users().GetUserByEmail(ctx, "  Alice@Example.COM ")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.False(t, got.TwoFactorEnabled())

	_, err = s.Users().GetUserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	err = s.Users().CreateUser(ctx, domain.User{ID: idx.New().String(), Email: "alice@example.com", PasswordHash: "x"})
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestTwoFactorLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "bob@example.com")

	require.NoError(t, s.Users().UpdateTwoFactorSecret(ctx, u.ID, "JBSWY3DPEHPK3PXP"))
	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TwoFactorSecret)
	require.False(t, got.TwoFactorEnabled(), "secret alone must not activate two-factor")

	require.NoError(t, s.Users().ActivateTwoFactor(ctx, u.ID))
	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.TwoFactorEnabled())

	require.NoError(t, s.Users().DeactivateTwoFactor(ctx, u.ID))
	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, got.TwoFactorEnabled())
	require.Nil(t, got.TwoFactorSecret)
}

func TestAbuseCounterIncrementAndWindowReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const channel = "backend-login"

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AbuseCounters().Increment(ctx, channel, time.Hour))
	}

	c, err := s.AbuseCounters().Get(ctx, channel)
	require.NoError(t, err)
	require.EqualValues(t, 3, c.Count)

	// A zero-length window means every prior window has already lapsed, so
	// the next increment restarts the count at 1.
	require.NoError(t, s.AbuseCounters().Increment(ctx, channel, 0))
	c, err = s.AbuseCounters().Get(ctx, channel)
	require.NoError(t, err)
	require.EqualValues(t, 1, c.Count)

	require.NoError(t, s.AbuseCounters().Reset(ctx, channel))
	_, err = s.AbuseCounters().Get(ctx, channel)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAbuseCounterConcurrentIncrements(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const (
		channel = "backend-login"
		n       = 20
	)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.AbuseCounters().Increment(ctx, channel, time.Hour)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	c, err := s.AbuseCounters().Get(ctx, channel)
	require.NoError(t, err)
	require.EqualValues(t, n, c.Count, "concurrent increments must not lose updates")
}

func TestChallengeConsumeOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch := domain.Challenge{
		ID:        idx.New().String(),
		Kind:      domain.ChallengeKindTwoFactor,
		Payload:   []byte("sealed"),
		ExpiresAt: time.Now().UTC().Add(5 * time.Minute),
	}
	require.NoError(t, s.Challenges().Create(ctx, ch))

	got, err := s.Challenges().Consume(ctx, domain.ChallengeKindTwoFactor, ch.ID)
	require.NoError(t, err)
	require.Equal(t, ch.Payload, got.Payload)

	_, err = s.Challenges().Consume(ctx, domain.ChallengeKindTwoFactor, ch.ID)
	require.ErrorIs(t, err, store.ErrNotFound, "second consume must miss")
}

func TestChallengeConsumeWrongKindOrExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	live := domain.Challenge{
		ID:        idx.New().String(),
		Kind:      domain.ChallengeKindWebAuthnLogin,
		Payload:   []byte("a"),
		ExpiresAt: time.Now().UTC().Add(time.Minute),
	}
	expired := domain.Challenge{
		ID:        idx.New().String(),
		Kind:      domain.ChallengeKindWebAuthnLogin,
		Payload:   []byte("b"),
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, s.Challenges().Create(ctx, live))
	require.NoError(t, s.Challenges().Create(ctx, expired))

	_, err := s.Challenges().Consume(ctx, domain.ChallengeKindTwoFactor, live.ID)
	require.ErrorIs(t, err, store.ErrNotFound, "kind mismatch must miss")

	_, err = s.Challenges().Consume(ctx, domain.ChallengeKindWebAuthnLogin, expired.ID)
	require.ErrorIs(t, err, store.ErrNotFound, "expired challenge must miss")

	// The mismatch lookups must not have burned the live challenge.
	_, err = s.Challenges().Consume(ctx, domain.ChallengeKindWebAuthnLogin, live.ID)
	require.NoError(t, err)
}

func TestSessionTokensExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "carol@example.com")

	future := time.Now().UTC().Add(time.Hour)
	past := time.Now().UTC().Add(-time.Hour)

	persistent := domain.SessionToken{ID: idx.New().String(), UserID: u.ID, TokenHash: "hash-persistent", ExpiresAt: &future}
	sessionScoped := domain.SessionToken{ID: idx.New().String(), UserID: u.ID, TokenHash: "hash-session"}
	stale := domain.SessionToken{ID: idx.New().String(), UserID: u.ID, TokenHash: "hash-stale", ExpiresAt: &past}

	require.NoError(t, s.SessionTokens().Create(ctx, persistent))
	require.NoError(t, s.SessionTokens().Create(ctx, sessionScoped))
	require.NoError(t, s.SessionTokens().Create(ctx, stale))

	got, err := s.SessionTokens().GetByHash(ctx, "hash-persistent")
	require.NoError(t, err)
	require.NotNil(t, got.ExpiresAt)

	got, err = s.SessionTokens().GetByHash(ctx, "hash-session")
	require.NoError(t, err)
	require.Nil(t, got.ExpiresAt, "session-scoped token has no expiry")

	_, err = s.SessionTokens().GetByHash(ctx, "hash-stale")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SessionTokens().DeleteExpired(ctx))
	require.NoError(t, s.SessionTokens().Delete(ctx, "hash-persistent"))
	_, err = s.SessionTokens().GetByHash(ctx, "hash-persistent")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestBackupCodes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "dave@example.com")

	require.NoError(t, s.BackupCodes().Create(ctx, u.ID, "fp-1"))
	require.NoError(t, s.BackupCodes().Create(ctx, u.ID, "fp-2"))

	ok, err := s.BackupCodes().Verify(ctx, u.ID, "fp-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.BackupCodes().Verify(ctx, u.ID, "fp-unknown")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.BackupCodes().Delete(ctx, u.ID, "fp-1"))
	ok, err = s.BackupCodes().Verify(ctx, u.ID, "fp-1")
	require.NoError(t, err)
	require.False(t, ok)

	count, err := s.BackupCodes().Count(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.NoError(t, s.BackupCodes().DeleteAll(ctx, u.ID))
	count, err = s.BackupCodes().Count(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestWebAuthnCredentials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "erin@example.com")

	cred := domain.WebAuthnCredential{
		ID:           idx.New().String(),
		UserID:       u.ID,
		CredentialID: []byte{0x01, 0x02, 0x03},
		PublicKey:    []byte{0xaa, 0xbb},
		AAGUID:       []byte{0x00},
		SignCount:    1,
		Transports:   []string{"usb", "internal"},
		Label:        "yubikey",
	}
	require.NoError(t, s.WebAuthnCredentials().Create(ctx, cred))

	err := s.WebAuthnCredentials().Create(ctx, domain.WebAuthnCredential{
		ID:           idx.New().String(),
		UserID:       u.ID,
		CredentialID: []byte{0x01, 0x02, 0x03},
		PublicKey:    []byte{0xcc},
	})
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	got, err := s.WebAuthnCredentials().GetByCredentialID(ctx, []byte{0x01, 0x02, 0x03})
	require.NoError(t, err)
	require.Equal(t, cred.Label, got.Label)
	require.Equal(t, []string{"usb", "internal"}, got.Transports)

	require.NoError(t, s.WebAuthnCredentials().UpdateSignCount(ctx, cred.CredentialID, 7))
	got, err = s.WebAuthnCredentials().GetByCredentialID(ctx, cred.CredentialID)
	require.NoError(t, err)
	require.EqualValues(t, 7, got.SignCount)

	list, err := s.WebAuthnCredentials().ListByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.WebAuthnCredentials().Delete(ctx, u.ID, cred.ID))
	_, err = s.WebAuthnCredentials().GetByCredentialID(ctx, cred.CredentialID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAuditEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	uid := idx.New().String()
	require.NoError(t, s.AuditEvents().Record(ctx, domain.AuditEvent{
		ID:       idx.New().String(),
		Category: domain.AuditLoginFailed,
		Email:    "mallory@example.com",
	}))
	require.NoError(t, s.AuditEvents().Record(ctx, domain.AuditEvent{
		ID:       idx.New().String(),
		Category: domain.AuditLoginSuccess,
		Email:    "alice@example.com",
		UserID:   uid,
		Metadata: map[string]string{"method": "password"},
	}))

	events, err := s.AuditEvents().ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	var success domain.AuditEvent
	for _, e := range events {
		if e.Category == domain.AuditLoginSuccess {
			success = e
		}
	}
	require.Equal(t, "alice@example.com", success.Email)
	require.Equal(t, uid, success.UserID)
	require.Equal(t, "password", success.Metadata["method"])
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "frank@example.com")

	sentinel := store.ErrAlreadyExists
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().Create(ctx, u.ID, "fp-tx"); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	ok, err := s.BackupCodes().Verify(ctx, u.ID, "fp-tx")
	require.NoError(t, err)
	require.False(t, ok, "rolled back write must not be visible")
}
