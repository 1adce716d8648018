package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lodgebook/authcore/internal/auth/domain"
	"github.com/lodgebook/authcore/internal/auth/store"
	"github.com/lodgebook/authcore/pkg/cryptox"
	"github.com/lodgebook/authcore/pkg/idx"
)

// DefaultStayTTL is the lifetime of a "stay logged in" session.
const DefaultStayTTL = 60 * 24 * time.Hour

// ErrInvalidSession covers unknown, expired and revoked session tokens.
var ErrInvalidSession = errors.New("invalid_session")

// SessionService issues and verifies opaque session tokens. Only the
// SHA-256 fingerprint of a token is ever persisted.
type SessionService struct {
	Store   store.Store
	StayTTL time.Duration
}

func (s *SessionService) stayTTL() time.Duration {
	if s.StayTTL <= 0 {
		return DefaultStayTTL
	}
	return s.StayTTL
}

// Create issues a fresh session token for the user. stay=true pins an
// absolute expiry, stay=false leaves it session-scoped (no stored expiry,
// the cookie dies with the browser session).
func (s *SessionService) Create(ctx context.Context, userID string, stay bool) (domain.IssuedSession, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.IssuedSession{}, fmt.Errorf("generate session token: %w", err)
	}

	record := domain.SessionToken{
		ID:        idx.New().String(),
		UserID:    userID,
		TokenHash: cryptox.FingerprintToken(token),
	}

	issued := domain.IssuedSession{Token: token, UserID: userID}
	if stay {
		ttl := s.stayTTL()
		expiresAt := time.Now().UTC().Add(ttl)
		record.ExpiresAt = &expiresAt
		issued.TTL = &ttl
	}

	if err := s.Store.SessionTokens().Create(ctx, record); err != nil {
		return domain.IssuedSession{}, fmt.Errorf("persist session token: %w", err)
	}
	return issued, nil
}

// Verify resolves a presented token to its user. Expired and unknown
// tokens are indistinguishable.
func (s *SessionService) Verify(ctx context.Context, token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, ErrInvalidSession
	}

	record, err := s.Store.SessionTokens().GetByHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidSession
		}
		return domain.User{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidSession
		}
		return domain.User{}, err
	}
	return user, nil
}

// Destroy revokes a presented token. Destroying an unknown token is a no-op.
func (s *SessionService) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.Store.SessionTokens().Delete(ctx, cryptox.FingerprintToken(token))
}

// DestroyAllForUser revokes every session of a user.
func (s *SessionService) DestroyAllForUser(ctx context.Context, userID string) error {
	return s.Store.SessionTokens().DeleteAllForUser(ctx, userID)
}
