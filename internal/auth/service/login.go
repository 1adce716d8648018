package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/lodgebook/authcore/internal/auth/challenge"
	"github.com/lodgebook/authcore/internal/auth/domain"
	"github.com/lodgebook/authcore/internal/auth/guard"
	"github.com/lodgebook/authcore/internal/auth/store"
	"github.com/lodgebook/authcore/pkg/cryptox"
	"github.com/lodgebook/authcore/pkg/flowtoken"
	"github.com/lodgebook/authcore/pkg/idx"
	"github.com/lodgebook/authcore/pkg/slogx"
)

// DefaultChannel is the abuse counter channel shared by every login entry
// point. One channel for the whole surface, so spraying attempts across
// many accounts still trips the same counter.
const DefaultChannel = "backend-login"

var (
	ErrInvalidCredentials      = errors.New("invalid_credentials")
	ErrRateLimited             = errors.New("rate_limited")
	ErrInvalidGrant            = errors.New("invalid_grant")
	ErrInvalidTwoFactorCode    = errors.New("invalid_two_factor_code")
	ErrInvalidFido2Request     = errors.New("invalid_fido2_request")
	ErrFido2VerificationFailed = errors.New("fido2_verification_failed")
)

// LoginService drives the login state machine: password check, optional
// second factor, WebAuthn assertion, session issuing and audit trail.
type LoginService struct {
	Store      store.Store
	Guard      guard.Guard
	Challenges *challenge.Cache
	Sessions   *SessionService
	Flow       *flowtoken.Signer
	WebAuthn   *webauthn.WebAuthn
	Channel    string // abuse counter channel, DefaultChannel when empty
}

// PasswordLoginResult is the single outcome of a password attempt: either a
// session, or a continuation token for the second factor. Never both.
type PasswordLoginResult struct {
	TwoFactorRequired bool
	FlowToken         string // set when TwoFactorRequired
	Session           domain.IssuedSession
}

func (s *LoginService) channel() string {
	if s.Channel == "" {
		return DefaultChannel
	}
	return s.Channel
}

// guardAttempt enforces the counter ordering every entry point shares:
// blocked channels terminate before anything else, and the attempt is
// counted before any credential is looked at.
func (s *LoginService) guardAttempt(ctx context.Context) error {
	blocked, err := s.Guard.IsBlocked(ctx, s.channel())
	if err != nil {
		return fmt.Errorf("guard check: %w", err)
	}
	if blocked {
		return ErrRateLimited
	}
	if err := s.Guard.CountUp(ctx, s.channel()); err != nil {
		return fmt.Errorf("guard count: %w", err)
	}
	return nil
}

func (s *LoginService) audit(ctx context.Context, category, email, userID, method string) {
	err := s.Store.AuditEvents().Record(ctx, domain.AuditEvent{
		ID:       idx.New().String(),
		Category: category,
		Email:    email,
		UserID:   userID,
		Metadata: map[string]string{"method": method},
	})
	if err != nil {
		slogx.FromContext(ctx).Warn("audit event not recorded",
			slog.String("category", category), slog.Any("error", err))
	}
}

// succeed finishes any fully verified login: counter reset, audit trail,
// fresh session.
func (s *LoginService) succeed(ctx context.Context, user domain.User, stay bool, method string) (domain.IssuedSession, error) {
	if err := s.Guard.Reset(ctx, s.channel()); err != nil {
		return domain.IssuedSession{}, fmt.Errorf("guard reset: %w", err)
	}

	session, err := s.Sessions.Create(ctx, user.ID, stay)
	if err != nil {
		return domain.IssuedSession{}, err
	}

	s.audit(ctx, domain.AuditLoginSuccess, user.Email, user.ID, method)
	return session, nil
}

// PasswordLogin verifies email and password. Without two-factor it issues a
// session directly. With two-factor it parks the pending state and returns
// a continuation token; no session exists until the second step completes.
func (s *LoginService) PasswordLogin(ctx context.Context, email, password string, stay bool) (PasswordLoginResult, error) {
	l := slogx.FromContext(ctx)
	email = strings.TrimSpace(email)

	if err := s.guardAttempt(ctx); err != nil {
		return PasswordLoginResult{}, err
	}

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a hash anyway so a missing account costs the same as a
			// wrong password.
			_ = cryptox.VerifyPassword(password, decoyHash())
			s.audit(ctx, domain.AuditLoginFailed, email, "", "password")
			return PasswordLoginResult{}, ErrInvalidCredentials
		}
		return PasswordLoginResult{}, err
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			l.Info("password login failed", slog.String("email", email))
			s.audit(ctx, domain.AuditLoginFailed, email, user.ID, "password")
			return PasswordLoginResult{}, ErrInvalidCredentials
		}
		return PasswordLoginResult{}, err
	}

	if !user.TwoFactorEnabled() {
		session, err := s.succeed(ctx, user, stay, "password")
		if err != nil {
			return PasswordLoginResult{}, err
		}
		return PasswordLoginResult{Session: session}, nil
	}

	// Password verified but a second factor is pending. The TOTP secret is
	// captured now so the completion step never re-reads the user row.
	pending := domain.PendingTwoFactor{
		UserID: user.ID,
		Stay:   stay,
		Secret: *user.TwoFactorSecret,
	}
	challengeID, err := s.Challenges.Put(ctx, domain.ChallengeKindTwoFactor, pending)
	if err != nil {
		return PasswordLoginResult{}, err
	}

	token, err := s.Flow.Sign(flowtoken.PurposeTwoFactor, challengeID)
	if err != nil {
		return PasswordLoginResult{}, fmt.Errorf("sign flow token: %w", err)
	}

	return PasswordLoginResult{TwoFactorRequired: true, FlowToken: token}, nil
}

// decoyHash keeps the timing of "unknown email" aligned with "wrong
// password". The plaintext is random and thrown away. Lazy so the pepper
// path is configured before the first hash.
var decoyHash = sync.OnceValue(func() string {
	h, err := cryptox.HashPassword(cryptox.MustGenerateToken(cryptox.TokenSize128))
	if err != nil {
		panic(err)
	}
	return h
})
