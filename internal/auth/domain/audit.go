package domain

import "time"

// Audit event categories recorded by the login flow.
const (
	AuditLoginSuccess = "login_success"
	AuditLoginFailed  = "login_failed"
)

// AuditEvent is an append-only record of a completed login attempt.
// The login core creates these and never mutates or deletes them.
type AuditEvent struct {
	ID        string
	Category  string
	Email     string // attempted email, may not belong to any user
	UserID    string // empty when the attempt never resolved a user
	Metadata  map[string]string
	CreatedAt time.Time
}
