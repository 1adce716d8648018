// Package guard tracks abuse counters for login channels and decides when a
// channel is blocked. A channel groups all attempts against one surface, so a
// distributed guesser hitting many accounts still trips the same counter.
package guard

import (
	"context"
	"time"
)

const (
	DefaultThreshold = 10
	DefaultWindow    = time.Hour
)

// Config tunes a guard. Zero values fall back to the defaults.
type Config struct {
	Threshold int64
	Window    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	return c
}

// Guard is the abuse counter consulted by every login entry point.
//
// Callers check IsBlocked before touching credentials and CountUp before
// verifying them, so an attacker cannot dodge the counter by aborting
// requests early. Reset clears the channel after a fully verified login.
type Guard interface {
	IsBlocked(ctx context.Context, channel string) (bool, error)
	CountUp(ctx context.Context, channel string) error
	Reset(ctx context.Context, channel string) error
}
