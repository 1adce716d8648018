package guard

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/lodgebook/authcore/internal/auth/store"
	"github.com/lodgebook/authcore/internal/auth/store/drivers/sqlite"
)

func newStoreGuard(t *testing.T, cfg Config) (*StoreGuard, store.Store) {
	t.Helper()

	s, err := sqlite.NewStore("file:" + filepath.Join(t.TempDir(), "guard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	return NewStoreGuard(s.AbuseCounters(), cfg), s
}

func TestStoreGuardBlocksAtThreshold(t *testing.T) {
	g, _ := newStoreGuard(t, Config{Threshold: 3, Window: time.Hour})
	ctx := context.Background()

	const channel = "backend-login"

	blocked, err := g.IsBlocked(ctx, channel)
	require.NoError(t, err)
	require.False(t, blocked, "fresh channel must not be blocked")

	for i := 0; i < 2; i++ {
		require.NoError(t, g.CountUp(ctx, channel))
	}
	blocked, err = g.IsBlocked(ctx, channel)
	require.NoError(t, err)
	require.False(t, blocked, "below threshold")

	require.NoError(t, g.CountUp(ctx, channel))
	blocked, err = g.IsBlocked(ctx, channel)
	require.NoError(t, err)
	require.True(t, blocked, "threshold reached")

	require.NoError(t, g.Reset(ctx, channel))
	blocked, err = g.IsBlocked(ctx, channel)
	require.NoError(t, err)
	require.False(t, blocked, "reset clears the block")
}

func TestStoreGuardChannelsAreIndependent(t *testing.T) {
	g, _ := newStoreGuard(t, Config{Threshold: 1, Window: time.Hour})
	ctx := context.Background()

	require.NoError(t, g.CountUp(ctx, "backend-login"))

	blocked, err := g.IsBlocked(ctx, "backend-login")
	require.NoError(t, err)
	require.True(t, blocked)

	blocked, err = g.IsBlocked(ctx, "password-reset")
	require.NoError(t, err)
	require.False(t, blocked)
}

func TestStoreGuardLapsedWindowUnblocks(t *testing.T) {
	g, _ := newStoreGuard(t, Config{Threshold: 1, Window: 10 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, g.CountUp(ctx, "backend-login"))

	blocked, err := g.IsBlocked(ctx, "backend-login")
	require.NoError(t, err)
	require.True(t, blocked)

	time.Sleep(20 * time.Millisecond)

	blocked, err = g.IsBlocked(ctx, "backend-login")
	require.NoError(t, err)
	require.False(t, blocked, "lapsed window must not block")
}

func TestStoreGuardDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	require.EqualValues(t, DefaultThreshold, cfg.Threshold)
	require.Equal(t, DefaultWindow, cfg.Window)
}

func newRedisGuard(t *testing.T, cfg Config) (*RedisGuard, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisGuard(client, cfg), mr
}

func TestRedisGuardBlocksAtThreshold(t *testing.T) {
	g, _ := newRedisGuard(t, Config{Threshold: 3, Window: time.Hour})
	ctx := context.Background()

	const channel = "backend-login"

	for i := 0; i < 3; i++ {
		blocked, err := g.IsBlocked(ctx, channel)
		require.NoError(t, err)
		require.False(t, blocked)
		require.NoError(t, g.CountUp(ctx, channel))
	}

	blocked, err := g.IsBlocked(ctx, channel)
	require.NoError(t, err)
	require.True(t, blocked)

	require.NoError(t, g.Reset(ctx, channel))
	blocked, err = g.IsBlocked(ctx, channel)
	require.NoError(t, err)
	require.False(t, blocked)
}

func TestRedisGuardWindowExpiry(t *testing.T) {
	g, mr := newRedisGuard(t, Config{Threshold: 1, Window: time.Minute})
	ctx := context.Background()

	require.NoError(t, g.CountUp(ctx, "backend-login"))

	blocked, err := g.IsBlocked(ctx, "backend-login")
	require.NoError(t, err)
	require.True(t, blocked)

	mr.FastForward(2 * time.Minute)

	blocked, err = g.IsBlocked(ctx, "backend-login")
	require.NoError(t, err)
	require.False(t, blocked, "expired key must not block")
}

func TestRedisGuardUnavailableBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	g := NewRedisGuard(client, Config{Threshold: 1, Window: time.Minute})

	mr.Close()

	_, err := g.IsBlocked(context.Background(), "backend-login")
	require.ErrorIs(t, err, ErrGuardUnavailable)

	err = g.CountUp(context.Background(), "backend-login")
	require.ErrorIs(t, err, ErrGuardUnavailable)
}
