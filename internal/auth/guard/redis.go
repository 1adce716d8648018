package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrGuardUnavailable indicates the counter backend is unreachable. Callers
// treat this as a hard failure, never as "not blocked".
var ErrGuardUnavailable = errors.New("guard backend unavailable")

// RedisGuard keeps counters in redis with a TTL acting as the window. Use it
// when several instances must share one view of the counters.
type RedisGuard struct {
	client redis.UniversalClient
	cfg    Config
}

func NewRedisGuard(client redis.UniversalClient, cfg Config) *RedisGuard {
	return &RedisGuard{client: client, cfg: cfg.withDefaults()}
}

func (g *RedisGuard) key(channel string) string {
	return "guard:" + channel
}

func (g *RedisGuard) IsBlocked(ctx context.Context, channel string) (bool, error) {
	count, err := g.client.Get(ctx, g.key(channel)).Int64()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrGuardUnavailable, err)
	}
	return count >= g.cfg.Threshold, nil
}

func (g *RedisGuard) CountUp(ctx context.Context, channel string) error {
	count, err := g.client.Incr(ctx, g.key(channel)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGuardUnavailable, err)
	}

	// TTL on first increment starts the window; later increments ride it out.
	if count == 1 {
		if err := g.client.Expire(ctx, g.key(channel), g.cfg.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrGuardUnavailable, err)
		}
	}
	return nil
}

func (g *RedisGuard) Reset(ctx context.Context, channel string) error {
	if err := g.client.Del(ctx, g.key(channel)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrGuardUnavailable, err)
	}
	return nil
}
