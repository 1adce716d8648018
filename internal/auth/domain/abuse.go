package domain

import "time"

// AbuseCounter aggregates failed login attempts under a named channel
// (e.g. "backend-login"), independent of which account is targeted.
type AbuseCounter struct {
	Channel       string
	Count         int64
	WindowStartAt time.Time
	UpdatedAt     time.Time
}
