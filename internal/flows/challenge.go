package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goTrust/session"
)

// ChallengeResult describes the pending challenge after an issue or reuse.
type ChallengeResult struct {
	ExpiresAt time.Time
	Issued    bool
	Reused    bool
	Delivered bool
	Warning   bool
}

// VerifyResult carries the path the client should continue to.
type VerifyResult struct {
	RedirectPath string
}

// ChallengeMetrics carries metric IDs needed by challenge flows.
type ChallengeMetrics struct {
	Issued             int
	Reused             int
	Resent             int
	Verified           int
	Mismatch           int
	Expired            int
	RateLimited        int
	NotificationFailed int
}

// ChallengeEvents carries audit event names used by challenge flows.
type ChallengeEvents struct {
	Issued             string
	Resent             string
	Verified           string
	Failed             string
	NotificationFailed string
	RateLimited        string
}

// ChallengeErrors carries host-level sentinel errors used by challenge flows.
type ChallengeErrors struct {
	EngineNotReady          error
	InvalidRequest          error
	SessionNotFound         error
	SessionStoreUnavailable error
	Absent                  error
	Expired                 error
	Mismatch                error
	RateLimited             error
	DeliveryFailed          error
	ContactMissing          error
}

// ChallengeDeps captures step-up challenge dependencies.
type ChallengeDeps struct {
	CodeTTL             time.Duration
	DefaultRedirectPath string
	ChallengePath       string

	Now           func() time.Time
	GenerateCode  func() (string, error)
	HashCode      func(string) [32]byte
	CodeMatches   func([32]byte, string) bool
	GetSession    func(ctx context.Context, sessionID string) (*session.Session, error)
	MutateSession func(ctx context.Context, sessionID string, fn func(*session.Session) error) (*session.Session, error)
	Send          func(ctx context.Context, to, subject, body string) error

	CheckResend         func(ctx context.Context, sessionID string) error
	CheckVerify         func(ctx context.Context, sessionID string) error
	RecordVerifyFailure func(ctx context.Context, sessionID string) error
	ResetVerify         func(ctx context.Context, sessionID string) error
	LimiterRateLimited  error

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)
	Warn      func(string, ...any)

	Metrics ChallengeMetrics
	Events  ChallengeEvents
	Errors  ChallengeErrors
}

type issueKind int

const (
	issueInitial issueKind = iota
	issueResend
)

// RunBeginChallenge returns the pending challenge if it is still valid and
// issues a fresh one otherwise.
func RunBeginChallenge(ctx context.Context, sessionID string, deps ChallengeDeps) (*ChallengeResult, error) {
	if deps.MutateSession == nil || deps.GetSession == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if sessionID == "" {
		return nil, deps.Errors.InvalidRequest
	}

	sess, err := deps.GetSession(ctx, sessionID)
	if err != nil {
		return nil, mapSessionError(err, deps.Errors.SessionNotFound, deps.Errors.SessionStoreUnavailable)
	}

	if sess.Challenge != nil && !sess.Challenge.Expired(deps.Now()) {
		deps.MetricInc(deps.Metrics.Reused)
		return &ChallengeResult{
			ExpiresAt: sess.Challenge.ExpiresAt(),
			Reused:    true,
			Warning:   sess.Warning,
		}, nil
	}

	return issueChallenge(ctx, sessionID, issueInitial, deps)
}

// RunResendChallenge issues a brand-new code, invalidating any pending one.
func RunResendChallenge(ctx context.Context, sessionID string, deps ChallengeDeps) (*ChallengeResult, error) {
	if deps.MutateSession == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if sessionID == "" {
		return nil, deps.Errors.InvalidRequest
	}

	if deps.CheckResend != nil {
		if err := deps.CheckResend(ctx, sessionID); err != nil {
			return nil, throttleError(ctx, sessionID, "resend", err, deps)
		}
	}

	return issueChallenge(ctx, sessionID, issueResend, deps)
}

// RunVerifyChallenge checks a submitted code against the pending challenge.
// A match clears the challenge and marks the session re-authenticated. A
// mismatch leaves the challenge in place. An expired challenge is cleared.
func RunVerifyChallenge(ctx context.Context, sessionID, code string, deps ChallengeDeps) (*VerifyResult, error) {
	if deps.MutateSession == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if sessionID == "" || strings.TrimSpace(code) == "" {
		return nil, deps.Errors.InvalidRequest
	}

	if deps.CheckVerify != nil {
		if err := deps.CheckVerify(ctx, sessionID); err != nil {
			return nil, throttleError(ctx, sessionID, "verify", err, deps)
		}
	}

	var (
		expired   bool
		retryPath string
	)
	now := deps.Now()
	sess, err := deps.MutateSession(ctx, sessionID, func(s *session.Session) error {
		if s.Challenge == nil {
			return deps.Errors.Absent
		}
		if s.Challenge.Expired(now) {
			s.Challenge = nil
			expired = true
			return nil
		}
		if !deps.CodeMatches(s.Challenge.CodeHash, code) {
			return deps.Errors.Mismatch
		}

		s.Challenge = nil
		s.ReAuthenticated = true
		s.StepUpPending = false
		retryPath = s.RetryPath
		s.RetryPath = ""
		return nil
	})

	principalID := ""
	if sess != nil {
		principalID = sess.PrincipalID
	}

	switch {
	case err == nil && expired:
		deps.MetricInc(deps.Metrics.Expired)
		deps.EmitAudit(ctx, deps.Events.Failed, false, principalID, sessionID, deps.Errors.Expired, func() map[string]string {
			return map[string]string{"reason": "expired"}
		})
		return nil, deps.Errors.Expired
	case errors.Is(err, deps.Errors.Mismatch):
		deps.MetricInc(deps.Metrics.Mismatch)
		deps.EmitAudit(ctx, deps.Events.Failed, false, "", sessionID, err, func() map[string]string {
			return map[string]string{"reason": "mismatch"}
		})
		if deps.RecordVerifyFailure != nil {
			if recErr := deps.RecordVerifyFailure(ctx, sessionID); recErr != nil &&
				!errors.Is(recErr, deps.LimiterRateLimited) && deps.Warn != nil {
				deps.Warn("goTrust: verify attempt tracking failed", "session_id", sessionID, "error", recErr)
			}
		}
		return nil, deps.Errors.Mismatch
	case errors.Is(err, deps.Errors.Absent):
		deps.EmitAudit(ctx, deps.Events.Failed, false, "", sessionID, err, func() map[string]string {
			return map[string]string{"reason": "absent"}
		})
		return nil, deps.Errors.Absent
	case err != nil:
		return nil, mapSessionError(err, deps.Errors.SessionNotFound, deps.Errors.SessionStoreUnavailable)
	}

	if deps.ResetVerify != nil {
		if resetErr := deps.ResetVerify(ctx, sessionID); resetErr != nil && deps.Warn != nil {
			deps.Warn("goTrust: verify attempt reset failed", "session_id", sessionID, "error", resetErr)
		}
	}

	deps.MetricInc(deps.Metrics.Verified)
	deps.EmitAudit(ctx, deps.Events.Verified, true, principalID, sessionID, nil, nil)

	return &VerifyResult{
		RedirectPath: SafeRetryPath(retryPath, deps.ChallengePath, deps.DefaultRedirectPath),
	}, nil
}

func issueChallenge(ctx context.Context, sessionID string, kind issueKind, deps ChallengeDeps) (*ChallengeResult, error) {
	code, err := deps.GenerateCode()
	if err != nil {
		return nil, err
	}

	pending := session.NewPendingChallenge(deps.HashCode(code), deps.Now(), deps.CodeTTL)

	sess, err := deps.MutateSession(ctx, sessionID, func(s *session.Session) error {
		if s.Contact == "" {
			return deps.Errors.ContactMissing
		}
		s.Challenge = pending
		return nil
	})
	if err != nil {
		if errors.Is(err, deps.Errors.ContactMissing) {
			return nil, err
		}
		return nil, mapSessionError(err, deps.Errors.SessionNotFound, deps.Errors.SessionStoreUnavailable)
	}

	result := &ChallengeResult{
		ExpiresAt: pending.ExpiresAt(),
		Issued:    true,
		Warning:   sess.Warning,
	}

	subject, body := challengeMessage(kind, code, deps.CodeTTL)
	if err := deps.Send(ctx, sess.Contact, subject, body); err != nil {
		deps.MetricInc(deps.Metrics.NotificationFailed)
		if deps.Warn != nil {
			deps.Warn("goTrust: challenge delivery failed", "session_id", sessionID, "error", err)
		}
		deps.EmitAudit(ctx, deps.Events.NotificationFailed, false, sess.PrincipalID, sessionID, deps.Errors.DeliveryFailed, nil)
		return result, fmt.Errorf("%w: %v", deps.Errors.DeliveryFailed, err)
	}
	result.Delivered = true

	event, metric := deps.Events.Issued, deps.Metrics.Issued
	if kind == issueResend {
		event, metric = deps.Events.Resent, deps.Metrics.Resent
	}
	deps.MetricInc(metric)
	deps.EmitAudit(ctx, event, true, sess.PrincipalID, sessionID, nil, func() map[string]string {
		return map[string]string{"expires_at": result.ExpiresAt.Format(time.RFC3339)}
	})

	return result, nil
}

func throttleError(ctx context.Context, sessionID, scope string, err error, deps ChallengeDeps) error {
	if !errors.Is(err, deps.LimiterRateLimited) {
		return fmt.Errorf("%w: %v", deps.Errors.SessionStoreUnavailable, err)
	}
	deps.MetricInc(deps.Metrics.RateLimited)
	deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", sessionID, deps.Errors.RateLimited, func() map[string]string {
		return map[string]string{"scope": scope}
	})
	return deps.Errors.RateLimited
}

func challengeMessage(kind issueKind, code string, ttl time.Duration) (string, string) {
	expires := describeTTL(ttl)
	if kind == issueResend {
		return "Your New OTP for Re-Authentication",
			fmt.Sprintf("Your new OTP is %s. It expires in %s.", code, expires)
	}
	return "Your OTP for Re-Authentication",
		fmt.Sprintf("Your OTP is %s. It expires in %s.", code, expires)
}

func describeTTL(ttl time.Duration) string {
	if ttl >= time.Minute && ttl%time.Minute == 0 {
		m := int(ttl / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	s := int(ttl / time.Second)
	if s == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", s)
}
