package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lodgebook/authcore/internal/auth/store"
	"github.com/lodgebook/authcore/internal/auth/store/drivers/sqlite"
)

func newSessionService(t *testing.T) (*SessionService, store.Store) {
	t.Helper()

	s, err := sqlite.NewStore("file:" + filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	return &SessionService{Store: s}, s
}

func TestSessionCreateAndVerify(t *testing.T) {
	svc, s := newSessionService(t)
	ctx := context.Background()

	u := createUser(t, s, "alice@example.com", "pw")

	issued, err := svc.Create(ctx, u.ID, false)
	require.NoError(t, err)
	require.NotEmpty(t, issued.Token)
	require.Nil(t, issued.TTL)

	got, err := svc.Verify(ctx, issued.Token)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
}

func TestSessionStayTTL(t *testing.T) {
	svc, s := newSessionService(t)
	ctx := context.Background()

	u := createUser(t, s, "alice@example.com", "pw")

	issued, err := svc.Create(ctx, u.ID, true)
	require.NoError(t, err)
	require.NotNil(t, issued.TTL)
	require.Equal(t, DefaultStayTTL, *issued.TTL)
}

func TestSessionStayTTLOverride(t *testing.T) {
	svc, s := newSessionService(t)
	svc.StayTTL = 24 * time.Hour
	ctx := context.Background()

	u := createUser(t, s, "alice@example.com", "pw")

	issued, err := svc.Create(ctx, u.ID, true)
	require.NoError(t, err)
	require.NotNil(t, issued.TTL)
	require.Equal(t, 24*time.Hour, *issued.TTL)
}

func TestSessionVerifyUnknownToken(t *testing.T) {
	svc, _ := newSessionService(t)

	_, err := svc.Verify(context.Background(), "no-such-token")
	require.ErrorIs(t, err, ErrInvalidSession)

	_, err = svc.Verify(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestSessionDestroy(t *testing.T) {
	svc, s := newSessionService(t)
	ctx := context.Background()

	u := createUser(t, s, "alice@example.com", "pw")

	issued, err := svc.Create(ctx, u.ID, false)
	require.NoError(t, err)

	require.NoError(t, svc.Destroy(ctx, issued.Token))
	_, err = svc.Verify(ctx, issued.Token)
	require.ErrorIs(t, err, ErrInvalidSession)

	// Destroying again is a no-op.
	require.NoError(t, svc.Destroy(ctx, issued.Token))
}

func TestSessionDestroyAllForUser(t *testing.T) {
	svc, s := newSessionService(t)
	ctx := context.Background()

	u := createUser(t, s, "alice@example.com", "pw")
	other := createUser(t, s, "bob@example.com", "pw")

	first, err := svc.Create(ctx, u.ID, false)
	require.NoError(t, err)
	second, err := svc.Create(ctx, u.ID, true)
	require.NoError(t, err)
	keep, err := svc.Create(ctx, other.ID, false)
	require.NoError(t, err)

	require.NoError(t, svc.DestroyAllForUser(ctx, u.ID))

	_, err = svc.Verify(ctx, first.Token)
	require.ErrorIs(t, err, ErrInvalidSession)
	_, err = svc.Verify(ctx, second.Token)
	require.ErrorIs(t, err, ErrInvalidSession)

	_, err = svc.Verify(ctx, keep.Token)
	require.NoError(t, err, "other users keep their sessions")
}

func TestSessionTokenStoredAsFingerprintOnly(t *testing.T) {
	svc, s := newSessionService(t)
	ctx := context.Background()

	u := createUser(t, s, "alice@example.com", "pw")

	issued, err := svc.Create(ctx, u.ID, false)
	require.NoError(t, err)

	// Looking up by the raw token value must miss; only the fingerprint is
	// persisted.
	_, err = s.SessionTokens().GetByHash(ctx, issued.Token)
	require.ErrorIs(t, err, store.ErrNotFound)
}
