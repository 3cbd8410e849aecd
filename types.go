package goTrust

import (
	"context"
	"time"
)

// Observation is the request-time context triple compared against the
// principal's expected context.
type Observation struct {
	Address         string
	ClientSignature string
	Location        string
}

// ExpectedContext is the last stored context of a principal. There is at
// most one per principal.
type ExpectedContext struct {
	PrincipalID     string
	Address         string
	ClientSignature string
	Location        string
	LastSeen        time.Time
}

// GeoResolver maps an address to a coarse location label. Implementations
// must not fail observably: any lookup problem resolves to the configured
// unknown location.
type GeoResolver interface {
	Resolve(ctx context.Context, address string) string
}

// ContextStore persists one [ExpectedContext] per principal.
//
// Get returns nil and no error when the principal has no record. Upsert writes
// only if no record exists or a field differs, atomically per principal, and
// reports whether it wrote.
type ContextStore interface {
	Get(ctx context.Context, principalID string) (*ExpectedContext, error)
	Upsert(ctx context.Context, principalID string, obs Observation) (bool, error)
	Delete(ctx context.Context, principalID string) error
}

// Notifier delivers a one-time code out of band.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, to, subject, body string) error

// Send calls f.
func (f NotifierFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

// Action is the guard's verdict for a request.
type Action uint8

const (
	// ActionAllow lets the request proceed.
	ActionAllow Action = iota
	// ActionRedirect sends the client to the step-up challenge.
	ActionRedirect
)

func (a Action) String() string {
	switch a {
	case ActionRedirect:
		return "redirect"
	default:
		return "allow"
	}
}

// EvaluateRequest is the per-request input to [Engine.Evaluate].
type EvaluateRequest struct {
	PrincipalID     string
	SessionID       string
	Address         string
	ClientSignature string
	Path            string
	Authenticated   bool
}

// Decision is the outcome of [Engine.Evaluate].
type Decision struct {
	Action         Action
	RedirectPath   string
	RetryPath      string
	RiskScore      float64
	TTL            time.Duration
	RequiresStepUp bool
	Warning        bool
	Factors        []string
}

// SessionHandle is returned by [Engine.StartSession].
type SessionHandle struct {
	SessionID   string
	AccessToken string
	ExpiresAt   time.Time
}

// SessionInfo is a read-only view of a session. It never carries the
// one-time code.
type SessionInfo struct {
	SessionID        string
	PrincipalID      string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	TTL              time.Duration
	ReAuthenticated  bool
	StepUpPending    bool
	Warning          bool
	RetryPath        string
	ChallengePending bool
	ChallengeExpires time.Time
	// VerifyAttempts is the failed-verification count in the current window.
	VerifyAttempts int
}

// ChallengeResult describes the pending challenge after BeginChallenge or
// ResendChallenge. Reused is set when a still-valid code was kept and no
// message was sent.
type ChallengeResult struct {
	ExpiresAt time.Time
	Issued    bool
	Reused    bool
	Delivered bool
	Warning   bool
}

// VerifyResult carries the path to continue to after a successful verification.
type VerifyResult struct {
	RedirectPath string
}

// HealthStatus is returned by [Engine.Health].
type HealthStatus struct {
	SessionStoreOK bool
	ContextStoreOK bool
	Latency        time.Duration
}
