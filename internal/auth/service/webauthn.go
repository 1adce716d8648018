package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/lodgebook/authcore/internal/auth/challenge"
	"github.com/lodgebook/authcore/internal/auth/domain"
	"github.com/lodgebook/authcore/internal/auth/store"
	"github.com/lodgebook/authcore/pkg/flowtoken"
	"github.com/lodgebook/authcore/pkg/slogx"
)

// WebAuthnLoginStart carries the assertion options to the client together
// with the continuation token for the finish step.
type WebAuthnLoginStart struct {
	Options   *protocol.CredentialAssertion
	FlowToken string
}

// BeginWebAuthnLogin starts an assertion ceremony for the user's registered
// authenticators. An account without any registered credential cannot start
// one and nothing is stored for it.
func (s *LoginService) BeginWebAuthnLogin(ctx context.Context, email string) (WebAuthnLoginStart, error) {
	email = strings.TrimSpace(email)

	if err := s.guardAttempt(ctx); err != nil {
		return WebAuthnLoginStart{}, err
	}

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return WebAuthnLoginStart{}, ErrInvalidFido2Request
		}
		return WebAuthnLoginStart{}, err
	}

	creds, err := s.Store.WebAuthnCredentials().ListByUser(ctx, user.ID)
	if err != nil {
		return WebAuthnLoginStart{}, err
	}
	if len(creds) == 0 {
		return WebAuthnLoginStart{}, ErrInvalidFido2Request
	}

	waUser := domain.WebAuthnUser{User: user, Credentials: creds}
	options, sessionData, err := s.WebAuthn.BeginLogin(waUser)
	if err != nil {
		return WebAuthnLoginStart{}, ErrInvalidFido2Request
	}

	challengeID, err := s.Challenges.Put(ctx, domain.ChallengeKindWebAuthnLogin, domain.PendingWebAuthn{
		UserID:  user.ID,
		Session: *sessionData,
	})
	if err != nil {
		return WebAuthnLoginStart{}, err
	}

	token, err := s.Flow.Sign(flowtoken.PurposeWebAuthnLogin, challengeID)
	if err != nil {
		return WebAuthnLoginStart{}, err
	}

	return WebAuthnLoginStart{Options: options, FlowToken: token}, nil
}

// FinishWebAuthnLogin verifies the authenticator assertion against the
// parked ceremony state. The challenge is consumed up front, so a failed or
// replayed assertion always needs a fresh Begin.
func (s *LoginService) FinishWebAuthnLogin(ctx context.Context, token string, response *protocol.ParsedCredentialAssertionData, stay bool) (domain.IssuedSession, error) {
	l := slogx.FromContext(ctx)

	challengeID, err := s.Flow.Verify(token, flowtoken.PurposeWebAuthnLogin)
	if err != nil {
		return domain.IssuedSession{}, ErrInvalidGrant
	}

	var pending domain.PendingWebAuthn
	if err := s.Challenges.Consume(ctx, domain.ChallengeKindWebAuthnLogin, challengeID, &pending); err != nil {
		if errors.Is(err, challenge.ErrChallengeNotFound) {
			return domain.IssuedSession{}, ErrInvalidGrant
		}
		return domain.IssuedSession{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, pending.UserID)
	if err != nil {
		return domain.IssuedSession{}, err
	}

	creds, err := s.Store.WebAuthnCredentials().ListByUser(ctx, user.ID)
	if err != nil {
		return domain.IssuedSession{}, err
	}

	waUser := domain.WebAuthnUser{User: user, Credentials: creds}
	credential, err := s.WebAuthn.ValidateLogin(waUser, pending.Session, response)
	if err != nil {
		l.Info("webauthn assertion failed", slog.String("user_id", user.ID), slog.Any("error", err))
		s.audit(ctx, domain.AuditLoginFailed, user.Email, user.ID, "webauthn")
		return domain.IssuedSession{}, ErrFido2VerificationFailed
	}

	if err := s.Store.WebAuthnCredentials().UpdateSignCount(ctx, credential.ID, credential.Authenticator.SignCount); err != nil {
		return domain.IssuedSession{}, err
	}

	return s.succeed(ctx, user, stay, "webauthn")
}
