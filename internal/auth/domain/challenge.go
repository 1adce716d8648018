package domain

import (
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Challenge kinds stored in the challenge cache. A challenge is only ever
// consumable under the kind it was stored with.
const (
	ChallengeKindTwoFactor        = "two_factor"
	ChallengeKindWebAuthnLogin    = "webauthn_login"
	ChallengeKindWebAuthnRegister = "webauthn_register"
)

// Challenge is an encrypted, short-lived payload parked between two request
// round-trips of a login flow. Consumed exactly once.
type Challenge struct {
	ID        string
	Kind      string
	Payload   []byte // AES-GCM sealed
	ExpiresAt time.Time
	CreatedAt time.Time
}

// PendingTwoFactor is the plaintext payload of a two_factor challenge:
// everything needed to finish the login without re-running the password
// check. Encrypted at rest via the challenge cache.
type PendingTwoFactor struct {
	UserID string `json:"user_id"`
	Stay   bool   `json:"stay"`
	Secret string `json:"secret"` // TOTP secret captured at password time
}

// PendingWebAuthn is the plaintext payload of a webauthn_login or
// webauthn_register challenge: the ceremony session data produced at Begin,
// bound to the user it was started for.
type PendingWebAuthn struct {
	UserID  string               `json:"user_id"`
	Session webauthn.SessionData `json:"session"`
}
