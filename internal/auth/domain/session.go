package domain

import "time"

// SessionToken is the persisted record of an issued session credential.
// Only the SHA-256 fingerprint of the opaque token is stored.
type SessionToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt *time.Time // nil = session-scoped (expires with the browser session)
	CreatedAt time.Time
}

// IssuedSession is handed back to the transport layer after a successful
// authentication. TTL nil means a session-scoped cookie.
type IssuedSession struct {
	Token  string // opaque, returned to the client exactly once
	UserID string
	TTL    *time.Duration
}
