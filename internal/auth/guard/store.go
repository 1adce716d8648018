package guard

import (
	"context"
	"errors"
	"time"

	"github.com/lodgebook/authcore/internal/auth/store"
)

// StoreGuard keeps counters in the primary database. It is the default
// backend so a single-node deployment needs nothing beyond sqlite.
type StoreGuard struct {
	counters store.AbuseCounters
	cfg      Config
}

func NewStoreGuard(counters store.AbuseCounters, cfg Config) *StoreGuard {
	return &StoreGuard{counters: counters, cfg: cfg.withDefaults()}
}

func (g *StoreGuard) IsBlocked(ctx context.Context, channel string) (bool, error) {
	c, err := g.counters.Get(ctx, channel)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	// A lapsed window no longer blocks even before housekeeping prunes it.
	if time.Since(c.WindowStartAt) >= g.cfg.Window {
		return false, nil
	}
	return c.Count >= g.cfg.Threshold, nil
}

func (g *StoreGuard) CountUp(ctx context.Context, channel string) error {
	return g.counters.Increment(ctx, channel, g.cfg.Window)
}

func (g *StoreGuard) Reset(ctx context.Context, channel string) error {
	return g.counters.Reset(ctx, channel)
}
