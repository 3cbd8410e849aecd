package session

import "time"

// Session is the per-login trust state persisted for the lifetime of a session.
//
// Session instances are loaded, mutated and saved through [Store]; callers should not
// share a decoded Session across goroutines.
type Session struct {
	SessionID   string
	PrincipalID string
	Contact     string

	CreatedAt  int64
	ExpiresAt  int64
	TTLSeconds uint32

	ReAuthenticated bool
	StepUpPending   bool
	Warning         bool
	RetryPath       string

	Challenge *PendingChallenge
}

// PendingChallenge is an issued step-up passcode awaiting verification.
// Only the SHA-256 hash of the code is kept. Times are unix milliseconds.
type PendingChallenge struct {
	CodeHash        [32]byte
	IssuedAtMillis  int64
	ExpiresAtMillis int64
}

// NewPendingChallenge records hash as issued at now and valid for ttl.
func NewPendingChallenge(hash [32]byte, now time.Time, ttl time.Duration) *PendingChallenge {
	return &PendingChallenge{
		CodeHash:        hash,
		IssuedAtMillis:  now.UnixMilli(),
		ExpiresAtMillis: now.Add(ttl).UnixMilli(),
	}
}

// ExpiresAt returns the expiry instant.
func (c *PendingChallenge) ExpiresAt() time.Time {
	return time.UnixMilli(c.ExpiresAtMillis).UTC()
}

// Expired reports whether the challenge can no longer be verified at now. The
// expiry instant itself is still valid.
func (c *PendingChallenge) Expired(now time.Time) bool {
	return c == nil || now.UnixMilli() > c.ExpiresAtMillis
}
