package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lodgebook/authcore/internal/auth/domain"
	"github.com/lodgebook/authcore/internal/auth/store"
	"github.com/lodgebook/authcore/internal/auth/store/drivers/sqlite"
	"github.com/lodgebook/authcore/pkg/idx"
)

func TestHousekeepingCleanup(t *testing.T) {
	s, err := sqlite.NewStore("file:" + filepath.Join(t.TempDir(), "housekeeping.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	ctx := context.Background()
	u := createUser(t, s, "alice@example.com", "pw")

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	require.NoError(t, s.Challenges().Create(ctx, domain.Challenge{
		ID: idx.New().String(), Kind: domain.ChallengeKindTwoFactor, Payload: []byte("x"), ExpiresAt: past,
	}))
	live := domain.Challenge{
		ID: idx.New().String(), Kind: domain.ChallengeKindTwoFactor, Payload: []byte("y"), ExpiresAt: future,
	}
	require.NoError(t, s.Challenges().Create(ctx, live))

	require.NoError(t, s.SessionTokens().Create(ctx, domain.SessionToken{
		ID: idx.New().String(), UserID: u.ID, TokenHash: "stale", ExpiresAt: &past,
	}))
	require.NoError(t, s.SessionTokens().Create(ctx, domain.SessionToken{
		ID: idx.New().String(), UserID: u.ID, TokenHash: "fresh", ExpiresAt: &future,
	}))

	require.NoError(t, s.AbuseCounters().Increment(ctx, "old-channel", time.Nanosecond))
	time.Sleep(10 * time.Millisecond)

	hk := NewHousekeepingService(s, slog.Default(), time.Hour, time.Millisecond)
	hk.Cleanup(ctx)

	_, err = s.Challenges().Consume(ctx, domain.ChallengeKindTwoFactor, live.ID)
	require.NoError(t, err, "live challenge survives")

	_, err = s.SessionTokens().GetByHash(ctx, "fresh")
	require.NoError(t, err, "live session survives")

	_, err = s.AbuseCounters().Get(ctx, "old-channel")
	require.ErrorIs(t, err, store.ErrNotFound, "stale counter pruned")
}

func TestHousekeepingStartStop(t *testing.T) {
	s, err := sqlite.NewStore("file:" + filepath.Join(t.TempDir(), "housekeeping2.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	hk := NewHousekeepingService(s, slog.Default(), time.Hour, time.Hour)
	hk.Start()
	hk.Stop()
}
