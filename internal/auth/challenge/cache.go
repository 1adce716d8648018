// Package challenge parks sensitive in-between-step state server side. A
// challenge is referenced by an opaque id handed to the client, its payload
// is sealed at rest, and it can be consumed exactly once.
package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lodgebook/authcore/internal/auth/domain"
	"github.com/lodgebook/authcore/internal/auth/store"
	"github.com/lodgebook/authcore/pkg/cryptox"
	"github.com/lodgebook/authcore/pkg/idx"
)

// DefaultTTL bounds how long a login may sit between steps.
const DefaultTTL = 5 * time.Minute

// ErrChallengeNotFound covers a missing, expired, kind-mismatched, or
// already consumed challenge. Callers cannot tell these apart on purpose.
var ErrChallengeNotFound = errors.New("challenge: not found")

type Cache struct {
	challenges store.Challenges
	ttl        time.Duration
}

func NewCache(challenges store.Challenges, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{challenges: challenges, ttl: ttl}
}

// Put seals payload and parks it under a fresh id.
func (c *Cache) Put(ctx context.Context, kind string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal challenge payload: %w", err)
	}

	sealed, err := cryptox.Encrypt(raw)
	if err != nil {
		return "", fmt.Errorf("seal challenge payload: %w", err)
	}

	id := idx.New().String()
	err = c.challenges.Create(ctx, domain.Challenge{
		ID:        id,
		Kind:      kind,
		Payload:   sealed,
		ExpiresAt: time.Now().UTC().Add(c.ttl),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Consume removes the challenge and unmarshals its payload into dst. A
// second Consume with the same id fails with ErrChallengeNotFound.
func (c *Cache) Consume(ctx context.Context, kind string, id string, dst any) error {
	ch, err := c.challenges.Consume(ctx, kind, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrChallengeNotFound
		}
		return err
	}

	raw, err := cryptox.Decrypt(ch.Payload)
	if err != nil {
		return fmt.Errorf("open challenge payload: %w", err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal challenge payload: %w", err)
	}
	return nil
}
