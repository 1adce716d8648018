package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/lodgebook/authcore/internal/auth/challenge"
	"github.com/lodgebook/authcore/internal/auth/domain"
	"github.com/lodgebook/authcore/internal/auth/store"
	"github.com/lodgebook/authcore/pkg/cryptox"
	"github.com/lodgebook/authcore/pkg/flowtoken"
	"github.com/lodgebook/authcore/pkg/idx"
)

const (
	backupCodeCount = 10                   // codes handed out per activation
	backupCodeBytes = cryptox.TokenSize128 // 128-bit entropy per code
)

var (
	ErrTwoFactorAlreadyEnabled = errors.New("two_factor_already_enabled")
	ErrTwoFactorNotEnrolled    = errors.New("two_factor_not_enrolled")
)

// EnrollmentService manages second-factor setup: TOTP enrollment with
// backup codes, and WebAuthn credential registration.
type EnrollmentService struct {
	Store      store.Store
	WebAuthn   *webauthn.WebAuthn
	Challenges *challenge.Cache
	Flow       *flowtoken.Signer
	Issuer     string // issuer shown in authenticator apps
}

// TOTPEnrollment is handed to the client once; the secret never leaves the
// server again after activation.
type TOTPEnrollment struct {
	Secret     string
	OTPAuthURL string
}

// EnrollTOTP generates and stores a TOTP secret without activating it. The
// user proves possession via ActivateTOTP before the factor counts.
func (s *EnrollmentService) EnrollTOTP(ctx context.Context, userID string) (TOTPEnrollment, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return TOTPEnrollment{}, err
	}
	if user.TwoFactorEnabled() {
		return TOTPEnrollment{}, ErrTwoFactorAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return TOTPEnrollment{}, fmt.Errorf("generate totp key: %w", err)
	}

	if err := s.Store.Users().UpdateTwoFactorSecret(ctx, userID, key.Secret()); err != nil {
		return TOTPEnrollment{}, fmt.Errorf("store totp secret: %w", err)
	}

	return TOTPEnrollment{Secret: key.Secret(), OTPAuthURL: key.URL()}, nil
}

// ActivateTOTP turns two-factor on once the user presents a valid code for
// the enrolled secret. Returns the backup codes, shown exactly once.
func (s *EnrollmentService) ActivateTOTP(ctx context.Context, userID, code string) ([]string, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled() {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	if user.TwoFactorSecret == nil || *user.TwoFactorSecret == "" {
		return nil, ErrTwoFactorNotEnrolled
	}

	if !totp.Validate(code, *user.TwoFactorSecret) {
		return nil, ErrInvalidTwoFactorCode
	}

	codes, err := s.issueBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.Store.Users().ActivateTwoFactor(ctx, userID); err != nil {
		return nil, fmt.Errorf("activate two-factor: %w", err)
	}
	return codes, nil
}

// RegenerateBackupCodes invalidates all remaining codes and issues a fresh
// set.
func (s *EnrollmentService) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.TwoFactorEnabled() {
		return nil, ErrTwoFactorNotEnrolled
	}
	return s.issueBackupCodes(ctx, userID)
}

// DisableTwoFactor removes the TOTP secret and every backup code.
func (s *EnrollmentService) DisableTwoFactor(ctx context.Context, userID string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().DeactivateTwoFactor(ctx, userID); err != nil {
			return err
		}
		return tx.BackupCodes().DeleteAll(ctx, userID)
	})
}

func (s *EnrollmentService) issueBackupCodes(ctx context.Context, userID string) ([]string, error) {
	codes := make([]string, backupCodeCount)
	for i := range codes {
		code, err := cryptox.GenerateToken(backupCodeBytes)
		if err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		codes[i] = code
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAll(ctx, userID); err != nil {
			return err
		}
		for _, code := range codes {
			if err := tx.BackupCodes().Create(ctx, userID, cryptox.FingerprintToken(code)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store backup codes: %w", err)
	}
	return codes, nil
}

// WebAuthnRegistrationStart carries creation options to the client plus the
// continuation token for the finish step.
type WebAuthnRegistrationStart struct {
	Options   *protocol.CredentialCreation
	FlowToken string
}

// BeginWebAuthnRegistration starts a credential creation ceremony.
// Already registered credentials are excluded so an authenticator cannot be
// enrolled twice.
func (s *EnrollmentService) BeginWebAuthnRegistration(ctx context.Context, userID string) (WebAuthnRegistrationStart, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return WebAuthnRegistrationStart{}, err
	}

	creds, err := s.Store.WebAuthnCredentials().ListByUser(ctx, userID)
	if err != nil {
		return WebAuthnRegistrationStart{}, err
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(creds))
	for _, c := range creds {
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: c.CredentialID,
		})
	}

	waUser := domain.WebAuthnUser{User: user, Credentials: creds}
	options, sessionData, err := s.WebAuthn.BeginRegistration(waUser,
		webauthn.WithExclusions(exclusions))
	if err != nil {
		return WebAuthnRegistrationStart{}, fmt.Errorf("begin registration: %w", err)
	}

	challengeID, err := s.Challenges.Put(ctx, domain.ChallengeKindWebAuthnRegister, domain.PendingWebAuthn{
		UserID:  userID,
		Session: *sessionData,
	})
	if err != nil {
		return WebAuthnRegistrationStart{}, err
	}

	token, err := s.Flow.Sign(flowtoken.PurposeWebAuthnRegister, challengeID)
	if err != nil {
		return WebAuthnRegistrationStart{}, err
	}

	return WebAuthnRegistrationStart{Options: options, FlowToken: token}, nil
}

// FinishWebAuthnRegistration verifies the attestation and persists the new
// credential under the given label.
func (s *EnrollmentService) FinishWebAuthnRegistration(ctx context.Context, userID, token string, response *protocol.ParsedCredentialCreationData, label string) (domain.WebAuthnCredential, error) {
	challengeID, err := s.Flow.Verify(token, flowtoken.PurposeWebAuthnRegister)
	if err != nil {
		return domain.WebAuthnCredential{}, ErrInvalidGrant
	}

	var pending domain.PendingWebAuthn
	if err := s.Challenges.Consume(ctx, domain.ChallengeKindWebAuthnRegister, challengeID, &pending); err != nil {
		if errors.Is(err, challenge.ErrChallengeNotFound) {
			return domain.WebAuthnCredential{}, ErrInvalidGrant
		}
		return domain.WebAuthnCredential{}, err
	}
	if pending.UserID != userID {
		return domain.WebAuthnCredential{}, ErrInvalidGrant
	}

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.WebAuthnCredential{}, err
	}

	creds, err := s.Store.WebAuthnCredentials().ListByUser(ctx, userID)
	if err != nil {
		return domain.WebAuthnCredential{}, err
	}

	waUser := domain.WebAuthnUser{User: user, Credentials: creds}
	credential, err := s.WebAuthn.CreateCredential(waUser, pending.Session, response)
	if err != nil {
		return domain.WebAuthnCredential{}, ErrFido2VerificationFailed
	}

	transports := make([]string, 0, len(credential.Transport))
	for _, t := range credential.Transport {
		transports = append(transports, string(t))
	}

	record := domain.WebAuthnCredential{
		ID:           idx.New().String(),
		UserID:       userID,
		CredentialID: credential.ID,
		PublicKey:    credential.PublicKey,
		AAGUID:       credential.Authenticator.AAGUID,
		SignCount:    credential.Authenticator.SignCount,
		Transports:   transports,
		Label:        label,
	}
	if err := s.Store.WebAuthnCredentials().Create(ctx, record); err != nil {
		return domain.WebAuthnCredential{}, err
	}
	return record, nil
}

// RemoveWebAuthnCredential deletes one registered authenticator.
func (s *EnrollmentService) RemoveWebAuthnCredential(ctx context.Context, userID, credentialID string) error {
	return s.Store.WebAuthnCredentials().Delete(ctx, userID, credentialID)
}
