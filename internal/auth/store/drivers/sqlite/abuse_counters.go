package sqlite

import (
	"context"
	"time"

	"github.com/lodgebook/authcore/internal/auth/domain"
)

type abuseCountersRepo struct {
	db dbtx
}

// Increment bumps the channel counter in a single upsert so concurrent
// callers serialize inside sqlite and no update is ever lost. A window that
// lapsed before now-window restarts at 1 instead of accumulating forever.
func (r *abuseCountersRepo) Increment(ctx context.Context, channel string, window time.Duration) error {
	ts := now()
	cutoff := ts.Add(-window)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO abuse_counters (channel, count, window_start_at, updated_at)
		 VALUES (?, 1, ?, ?)
		 ON CONFLICT (channel) DO UPDATE SET
		   count = CASE WHEN abuse_counters.window_start_at <= ? THEN 1 ELSE abuse_counters.count + 1 END,
		   window_start_at = CASE WHEN abuse_counters.window_start_at <= ? THEN excluded.window_start_at ELSE abuse_counters.window_start_at END,
		   updated_at = excluded.updated_at`,
		channel, ts, ts, cutoff, cutoff)
	return err
}

func (r *abuseCountersRepo) Get(ctx context.Context, channel string) (domain.AbuseCounter, error) {
	var c domain.AbuseCounter
	err := r.db.QueryRowContext(ctx,
		`SELECT channel, count, window_start_at, updated_at FROM abuse_counters WHERE channel = ?`,
		channel).Scan(&c.Channel, &c.Count, &c.WindowStartAt, &c.UpdatedAt)
	if err != nil {
		return domain.AbuseCounter{}, mapNotFound(err)
	}
	return c, nil
}

func (r *abuseCountersRepo) Reset(ctx context.Context, channel string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM abuse_counters WHERE channel = ?`, channel)
	return err
}

func (r *abuseCountersRepo) DeleteStale(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM abuse_counters WHERE window_start_at <= ?`, cutoff)
	return err
}
