// Package flowtoken signs short-lived references that continue a login flow
// across a client round-trip (pending two-factor state, WebAuthn ceremonies).
// The reference that leaves the server is an HS256 JWT carrying the challenge
// ID and a purpose claim; a token minted for one step can never be replayed
// into another.
package flowtoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Purpose scopes a token to a single continuation step.
type Purpose string

const (
	PurposeTwoFactor        Purpose = "two_factor"
	PurposeWebAuthnLogin    Purpose = "webauthn_login"
	PurposeWebAuthnRegister Purpose = "webauthn_register"
)

var (
	ErrInvalidToken = errors.New("flowtoken: invalid token")
	ErrWrongPurpose = errors.New("flowtoken: token purpose mismatch")
)

// Claims is the JWT payload for a flow continuation token.
type Claims struct {
	Purpose     Purpose `json:"purpose"`
	ChallengeID string  `json:"chl"`
	jwt.RegisteredClaims
}

// Signer mints and verifies flow tokens with a shared HMAC secret.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewSigner(secret []byte, issuer string, ttl time.Duration) *Signer {
	return &Signer{secret: secret, issuer: issuer, ttl: ttl}
}

// Sign mints a token binding challengeID to purpose for the signer's TTL.
func (s *Signer) Sign(purpose Purpose, challengeID string) (string, error) {
	now := time.Now()
	claims := Claims{
		Purpose:     purpose,
		ChallengeID: challengeID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature, expiry, issuer and purpose, returning the
// challenge ID the token was minted for.
func (s *Signer) Verify(token string, purpose Purpose) (string, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Purpose != purpose {
		return "", ErrWrongPurpose
	}
	if claims.ChallengeID == "" {
		return "", ErrInvalidToken
	}
	return claims.ChallengeID, nil
}
