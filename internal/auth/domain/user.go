package domain

import (
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// User is the login core's read-side view of an account. Provisioning and
// credential rotation happen elsewhere; the login flow only ever reads it.
type User struct {
	ID              string
	Email           string     // unique
	PasswordHash    string     // argon2id encoded
	TwoFactorSecret *string    // TOTP secret (nullable, base32 encoded)
	TwoFactorAt     *time.Time // timestamp when two-factor was activated (nullable)
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TwoFactorEnabled reports whether a login must complete a second factor.
func (u User) TwoFactorEnabled() bool {
	return u.TwoFactorAt != nil && u.TwoFactorSecret != nil && *u.TwoFactorSecret != ""
}

// WebAuthnCredential is one registered authenticator belonging to a user.
// The credential ID is globally unique across the store.
type WebAuthnCredential struct {
	ID           string
	UserID       string
	CredentialID []byte // raw credential ID as registered by the authenticator
	PublicKey    []byte // COSE-encoded public key
	AAGUID       []byte
	SignCount    uint32
	Transports   []string
	Label        string // user-facing name, e.g. "YubiKey 5"
	CreatedAt    time.Time
}

// WebAuthnUser adapts a User plus their registered credentials to the
// go-webauthn user contract for assertion and registration ceremonies.
type WebAuthnUser struct {
	User        User
	Credentials []WebAuthnCredential
}

func (w WebAuthnUser) WebAuthnID() []byte { return []byte(w.User.ID) }

func (w WebAuthnUser) WebAuthnName() string { return w.User.Email }

func (w WebAuthnUser) WebAuthnDisplayName() string { return w.User.Email }

func (w WebAuthnUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, 0, len(w.Credentials))
	for _, c := range w.Credentials {
		var transports []protocol.AuthenticatorTransport
		for _, t := range c.Transports {
			transports = append(transports, protocol.AuthenticatorTransport(t))
		}
		creds = append(creds, webauthn.Credential{
			ID:        c.CredentialID,
			PublicKey: c.PublicKey,
			Authenticator: webauthn.Authenticator{
				AAGUID:    c.AAGUID,
				SignCount: c.SignCount,
			},
			Transport: transports,
		})
	}
	return creds
}

func (w WebAuthnUser) WebAuthnIcon() string { return "" }
