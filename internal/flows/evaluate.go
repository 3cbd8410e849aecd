package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goTrust/session"
)

// ObservedContext is the flow-local request context triple. It doubles as the
// stored expected context when read back.
type ObservedContext struct {
	Address         string
	ClientSignature string
	Location        string
}

// PolicyOutcome is the flow-local view of a policy decision.
type PolicyOutcome struct {
	TTL            time.Duration
	RequiresStepUp bool
	Tier           int
}

// Policy tiers reported by [EvaluateDeps.Decide].
const (
	TierLow = iota
	TierMedium
	TierHigh
)

// EvaluateRequest is the flow-local per-request input.
type EvaluateRequest struct {
	PrincipalID     string
	SessionID       string
	Address         string
	ClientSignature string
	Path            string
	Authenticated   bool
}

// EvaluateResult is the flow-local decision.
type EvaluateResult struct {
	PassThrough      bool
	Redirect         bool
	RedirectPath     string
	RetryPath        string
	RiskScore        float64
	TTL              time.Duration
	RequiresStepUp   bool
	Warning          bool
	Factors          []string
	Location         string
	FirstObservation bool
	ContextWritten   bool
}

// EvaluateMetrics carries metric IDs needed by the evaluate flow.
type EvaluateMetrics struct {
	Allowed          int
	Redirected       int
	PassThrough      int
	Failure          int
	FirstObservation int
	ContextUpdated   int
	GeoDegraded      int
	SessionWarning   int
	TierLow          int
	TierMedium       int
	TierHigh         int
}

// EvaluateEvents carries audit event names used by the evaluate flow.
type EvaluateEvents struct {
	StepUpRequired string
	ContextChanged string
}

// EvaluateErrors carries host-level sentinel errors used by the evaluate flow.
type EvaluateErrors struct {
	EngineNotReady          error
	InvalidRequest          error
	ContextStoreUnavailable error
	SessionStoreUnavailable error
	SessionNotFound         error
}

// EvaluateDeps captures evaluate flow dependencies.
type EvaluateDeps struct {
	UnknownLocation     string
	ChallengePath       string
	DefaultRedirectPath string
	HighRiskTTL         time.Duration
	WarningWindow       time.Duration
	// StickyStepUp keeps a redirected session on the challenge, with its TTL
	// capped at HighRiskTTL, until it re-authenticates.
	StickyStepUp bool

	Now             func() time.Time
	ResolveLocation func(ctx context.Context, address string) string
	GetContext      func(ctx context.Context, principalID string) (*ObservedContext, error)
	UpsertContext   func(ctx context.Context, principalID string, obs ObservedContext) (bool, error)
	Score           func(obs ObservedContext, stored *ObservedContext) (float64, []string)
	Decide          func(score float64) PolicyOutcome
	MutateSession   func(ctx context.Context, sessionID string, fn func(*session.Session) error) (*session.Session, error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)
	Debug     func(string, ...any)

	Metrics EvaluateMetrics
	Events  EvaluateEvents
	Errors  EvaluateErrors
}

// RunEvaluate scores one authenticated request, refreshes the principal's
// expected context and applies the resulting expiry policy to the session.
func RunEvaluate(ctx context.Context, req EvaluateRequest, deps EvaluateDeps) (*EvaluateResult, error) {
	if !req.Authenticated {
		deps.MetricInc(deps.Metrics.PassThrough)
		return &EvaluateResult{PassThrough: true}, nil
	}
	if deps.MutateSession == nil || deps.GetContext == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if req.PrincipalID == "" || req.SessionID == "" {
		deps.MetricInc(deps.Metrics.Failure)
		return nil, deps.Errors.InvalidRequest
	}

	location := deps.ResolveLocation(ctx, req.Address)
	if location == "" {
		location = deps.UnknownLocation
	}
	if location == deps.UnknownLocation {
		deps.MetricInc(deps.Metrics.GeoDegraded)
		if deps.Debug != nil {
			deps.Debug("goTrust: location lookup degraded", "principal_id", req.PrincipalID)
		}
	}

	obs := ObservedContext{
		Address:         req.Address,
		ClientSignature: req.ClientSignature,
		Location:        location,
	}

	stored, err := deps.GetContext(ctx, req.PrincipalID)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		return nil, fmt.Errorf("%w: %v", deps.Errors.ContextStoreUnavailable, err)
	}

	score, factors := deps.Score(obs, stored)
	if stored == nil {
		deps.MetricInc(deps.Metrics.FirstObservation)
	}

	written, err := deps.UpsertContext(ctx, req.PrincipalID, obs)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		return nil, fmt.Errorf("%w: %v", deps.Errors.ContextStoreUnavailable, err)
	}
	if written {
		deps.MetricInc(deps.Metrics.ContextUpdated)
		if stored != nil {
			deps.EmitAudit(ctx, deps.Events.ContextChanged, true, req.PrincipalID, req.SessionID, nil, func() map[string]string {
				return map[string]string{
					"factors":  strings.Join(factors, ","),
					"location": location,
				}
			})
		}
	}

	policy := deps.Decide(score)
	switch policy.Tier {
	case TierHigh:
		deps.MetricInc(deps.Metrics.TierHigh)
	case TierMedium:
		deps.MetricInc(deps.Metrics.TierMedium)
	default:
		deps.MetricInc(deps.Metrics.TierLow)
	}

	onChallengePath := deps.ChallengePath != "" && req.Path == deps.ChallengePath

	var (
		stepUp   bool
		redirect bool
		warning  bool
		ttl      time.Duration
		retry    string
	)
	_, err = deps.MutateSession(ctx, req.SessionID, func(sess *session.Session) error {
		if sess.PrincipalID != req.PrincipalID {
			return deps.Errors.SessionNotFound
		}

		now := deps.Now()

		stepUp = policy.RequiresStepUp
		ttl = policy.TTL
		if !stepUp && deps.StickyStepUp && sess.StepUpPending && !sess.ReAuthenticated {
			stepUp = true
			if deps.HighRiskTTL > 0 && ttl > deps.HighRiskTTL {
				ttl = deps.HighRiskTTL
			}
		}
		if !stepUp {
			sess.StepUpPending = false
		}

		remaining := time.Unix(sess.ExpiresAt, 0).Sub(now)
		if ttl < remaining {
			remaining = ttl
		}
		warning = !stepUp && deps.WarningWindow > 0 && remaining <= deps.WarningWindow

		sess.ExpiresAt = now.Add(ttl).Unix()
		sess.TTLSeconds = uint32(ttl / time.Second)
		sess.Warning = warning

		redirect = stepUp && !sess.ReAuthenticated && !onChallengePath
		if redirect {
			sess.StepUpPending = true
			sess.RetryPath = SafeRetryPath(req.Path, deps.ChallengePath, deps.DefaultRedirectPath)
			retry = sess.RetryPath
		}
		return nil
	})
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		return nil, mapSessionError(err, deps.Errors.SessionNotFound, deps.Errors.SessionStoreUnavailable)
	}

	result := &EvaluateResult{
		RiskScore:        score,
		TTL:              ttl,
		RequiresStepUp:   stepUp,
		Warning:          warning,
		Factors:          factors,
		Location:         location,
		FirstObservation: stored == nil,
		ContextWritten:   written,
	}

	if warning {
		deps.MetricInc(deps.Metrics.SessionWarning)
	}

	if redirect {
		result.Redirect = true
		result.RedirectPath = deps.ChallengePath
		result.RetryPath = retry
		deps.MetricInc(deps.Metrics.Redirected)
		deps.EmitAudit(ctx, deps.Events.StepUpRequired, true, req.PrincipalID, req.SessionID, nil, func() map[string]string {
			return map[string]string{
				"risk_score": fmt.Sprintf("%.4f", score),
				"factors":    strings.Join(factors, ","),
				"retry_path": retry,
			}
		})
		return result, nil
	}

	deps.MetricInc(deps.Metrics.Allowed)
	return result, nil
}

// SafeRetryPath returns path when it is a same-origin absolute path other than
// the challenge endpoint, and fallback otherwise.
func SafeRetryPath(path, challengePath, fallback string) string {
	if fallback == "" {
		fallback = "/"
	}
	if path == "" || !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") || strings.Contains(path, "\\") {
		return fallback
	}
	if challengePath != "" && (path == challengePath || strings.HasPrefix(path, challengePath+"?")) {
		return fallback
	}
	return path
}

func mapSessionError(err, notFound, unavailable error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return notFound
	case errors.Is(err, session.ErrRedisUnavailable):
		return fmt.Errorf("%w: %v", unavailable, err)
	default:
		return err
	}
}
