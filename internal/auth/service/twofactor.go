package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/pquerna/otp/totp"

	"github.com/lodgebook/authcore/internal/auth/challenge"
	"github.com/lodgebook/authcore/internal/auth/domain"
	"github.com/lodgebook/authcore/pkg/cryptox"
	"github.com/lodgebook/authcore/pkg/flowtoken"
	"github.com/lodgebook/authcore/pkg/slogx"
)

// totpCodeLength distinguishes a TOTP code from a backup code. Backup codes
// are base64url tokens and never 6 characters long.
const totpCodeLength = 6

// CompleteTwoFactor finishes a password login that required a second
// factor. The continuation token references a single-use challenge, so a
// wrong code sends the user back to the password step.
func (s *LoginService) CompleteTwoFactor(ctx context.Context, token, code string) (domain.IssuedSession, error) {
	l := slogx.FromContext(ctx)
	code = strings.TrimSpace(code)

	if err := s.guardAttempt(ctx); err != nil {
		return domain.IssuedSession{}, err
	}

	challengeID, err := s.Flow.Verify(token, flowtoken.PurposeTwoFactor)
	if err != nil {
		return domain.IssuedSession{}, ErrInvalidGrant
	}

	var pending domain.PendingTwoFactor
	if err := s.Challenges.Consume(ctx, domain.ChallengeKindTwoFactor, challengeID, &pending); err != nil {
		if errors.Is(err, challenge.ErrChallengeNotFound) {
			return domain.IssuedSession{}, ErrInvalidGrant
		}
		return domain.IssuedSession{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, pending.UserID)
	if err != nil {
		return domain.IssuedSession{}, err
	}

	ok, err := s.verifySecondFactor(ctx, pending, code)
	if err != nil {
		return domain.IssuedSession{}, err
	}
	if !ok {
		l.Info("two-factor verification failed", slog.String("user_id", user.ID))
		s.audit(ctx, domain.AuditLoginFailed, user.Email, user.ID, "two_factor")
		return domain.IssuedSession{}, ErrInvalidTwoFactorCode
	}

	return s.succeed(ctx, user, pending.Stay, "two_factor")
}

// verifySecondFactor accepts either a 6-digit TOTP code or a backup code.
// A matching backup code is deleted in the same step so it can never
// validate twice.
func (s *LoginService) verifySecondFactor(ctx context.Context, pending domain.PendingTwoFactor, code string) (bool, error) {
	if len(code) == totpCodeLength {
		return totp.Validate(code, pending.Secret), nil
	}

	hash := cryptox.FingerprintToken(code)
	ok, err := s.Store.BackupCodes().Verify(ctx, pending.UserID, hash)
	if err != nil || !ok {
		return false, err
	}
	if err := s.Store.BackupCodes().Delete(ctx, pending.UserID, hash); err != nil {
		return false, err
	}
	return true, nil
}
