package goTrust

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goTrust/internal"
	internalflows "github.com/MrEthical07/goTrust/internal/flows"
	"github.com/MrEthical07/goTrust/internal/rate"
	"github.com/MrEthical07/goTrust/session"
)

func (e *Engine) initFlowDeps() {
	e.flows = internalflows.New(internalflows.Deps{
		Evaluate:  e.evaluateFlowDeps(),
		Challenge: e.challengeFlowDeps(),
		Lifecycle: e.lifecycleFlowDeps(),
	})
}

func (e *Engine) flowMetricInc(id int) {
	e.metricInc(MetricID(id))
}

func (e *Engine) evaluateFlowDeps() internalflows.EvaluateDeps {
	cfg := e.config
	return internalflows.EvaluateDeps{
		UnknownLocation:     cfg.Risk.UnknownLocation,
		ChallengePath:       cfg.Challenge.ChallengePath,
		DefaultRedirectPath: cfg.Challenge.DefaultRedirectPath,
		HighRiskTTL:         cfg.Policy.HighRiskTTL,
		StickyStepUp:        cfg.Session.StickyStepUp,
		WarningWindow:       cfg.Session.WarningWindow,

		Now: e.now,
		ResolveLocation: func(ctx context.Context, address string) string {
			if e.geo == nil {
				return cfg.Risk.UnknownLocation
			}
			return e.geo.Resolve(ctx, address)
		},
		GetContext: func(ctx context.Context, principalID string) (*internalflows.ObservedContext, error) {
			stored, err := e.contextStore.Get(ctx, principalID)
			if err != nil || stored == nil {
				return nil, err
			}
			return &internalflows.ObservedContext{
				Address:         stored.Address,
				ClientSignature: stored.ClientSignature,
				Location:        stored.Location,
			}, nil
		},
		UpsertContext: func(ctx context.Context, principalID string, obs internalflows.ObservedContext) (bool, error) {
			return e.contextStore.Upsert(ctx, principalID, Observation(obs))
		},
		Score: func(obs internalflows.ObservedContext, stored *internalflows.ObservedContext) (float64, []string) {
			var expected *ExpectedContext
			if stored != nil {
				expected = &ExpectedContext{
					Address:         stored.Address,
					ClientSignature: stored.ClientSignature,
					Location:        stored.Location,
				}
			}
			return e.scorer.Explain(Observation(obs), expected)
		},
		Decide: func(score float64) internalflows.PolicyOutcome {
			d := e.policy.Decide(score)
			return internalflows.PolicyOutcome{TTL: d.TTL, RequiresStepUp: d.RequiresStepUp, Tier: int(d.Tier)}
		},
		MutateSession: e.sessionStore.Mutate,

		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Debug:     e.logger.Debug,

		Metrics: internalflows.EvaluateMetrics{
			Allowed:          int(MetricEvaluateAllowed),
			Redirected:       int(MetricEvaluateRedirected),
			PassThrough:      int(MetricEvaluatePassThrough),
			Failure:          int(MetricEvaluateFailure),
			FirstObservation: int(MetricFirstObservation),
			ContextUpdated:   int(MetricContextUpdated),
			GeoDegraded:      int(MetricGeoLookupDegraded),
			SessionWarning:   int(MetricSessionWarning),
			TierLow:          int(MetricRiskTierLow),
			TierMedium:       int(MetricRiskTierMedium),
			TierHigh:         int(MetricRiskTierHigh),
		},
		Events: internalflows.EvaluateEvents{
			StepUpRequired: auditEventStepUpRequired,
			ContextChanged: auditEventContextChanged,
		},
		Errors: internalflows.EvaluateErrors{
			EngineNotReady:          ErrEngineNotReady,
			InvalidRequest:          ErrInvalidRequest,
			ContextStoreUnavailable: ErrContextStoreUnavailable,
			SessionStoreUnavailable: ErrSessionStoreUnavailable,
			SessionNotFound:         ErrSessionNotFound,
		},
	}
}

func (e *Engine) challengeFlowDeps() internalflows.ChallengeDeps {
	cfg := e.config
	return internalflows.ChallengeDeps{
		CodeTTL:             cfg.Challenge.CodeTTL,
		DefaultRedirectPath: cfg.Challenge.DefaultRedirectPath,
		ChallengePath:       cfg.Challenge.ChallengePath,

		Now: e.now,
		GenerateCode: func() (string, error) {
			return internal.NewOTP(cfg.Challenge.Digits)
		},
		HashCode:      internal.HashOTP,
		CodeMatches:   internal.OTPMatches,
		GetSession:    e.sessionStore.Get,
		MutateSession: e.sessionStore.Mutate,
		Send:          e.notifier.Send,

		CheckResend:         e.rateLimiter.CheckResend,
		CheckVerify:         e.rateLimiter.CheckVerify,
		RecordVerifyFailure: e.rateLimiter.RecordVerifyFailure,
		ResetVerify:         e.rateLimiter.ResetVerify,
		LimiterRateLimited:  rate.ErrRateLimited,

		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Warn:      e.logger.Warn,

		Metrics: internalflows.ChallengeMetrics{
			Issued:             int(MetricChallengeIssued),
			Reused:             int(MetricChallengeReused),
			Resent:             int(MetricChallengeResent),
			Verified:           int(MetricChallengeVerified),
			Mismatch:           int(MetricChallengeMismatch),
			Expired:            int(MetricChallengeExpired),
			RateLimited:        int(MetricChallengeRateLimited),
			NotificationFailed: int(MetricNotificationFailed),
		},
		Events: internalflows.ChallengeEvents{
			Issued:             auditEventChallengeIssued,
			Resent:             auditEventChallengeResent,
			Verified:           auditEventChallengeVerified,
			Failed:             auditEventChallengeFailed,
			NotificationFailed: auditEventNotificationFailed,
			RateLimited:        auditEventRateLimitTriggered,
		},
		Errors: internalflows.ChallengeErrors{
			EngineNotReady:          ErrEngineNotReady,
			InvalidRequest:          ErrInvalidRequest,
			SessionNotFound:         ErrSessionNotFound,
			SessionStoreUnavailable: ErrSessionStoreUnavailable,
			Absent:                  ErrChallengeAbsent,
			Expired:                 ErrChallengeExpired,
			Mismatch:                ErrChallengeMismatch,
			RateLimited:             ErrChallengeRateLimited,
			DeliveryFailed:          ErrNotificationDeliveryFailed,
			ContactMissing:          ErrContactMissing,
		},
	}
}

func (e *Engine) lifecycleFlowDeps() internalflows.LifecycleDeps {
	return internalflows.LifecycleDeps{
		InitialTTL: e.config.Session.InitialTTL,

		Now: e.now,
		NewSessionID: func() (string, error) {
			id, err := internal.NewSessionID()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
		IssueAccessToken: e.jwtManager.CreateAccess,
		ParseAccessToken: func(token string) (string, string, error) {
			claims, err := e.jwtManager.ParseAccess(token)
			if err != nil {
				return "", "", err
			}
			// A signed token may still carry an id this engine never minted.
			if _, err := internal.ParseSessionID(claims.SID); err != nil {
				return "", "", fmt.Errorf("session id claim: %w", err)
			}
			return claims.UID, claims.SID, nil
		},
		SaveSession:       e.sessionStore.Save,
		GetSession:        e.sessionStore.Get,
		DeleteSession:     e.sessionStore.Delete,
		ListSessions:      e.sessionStore.ActiveSessionIDs,
		DeleteAllSessions: e.sessionStore.DeleteAllForPrincipal,
		DeleteContext:     e.contextStore.Delete,
		ResetThrottles:    e.rateLimiter.Reset,

		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Warn:      e.logger.Warn,

		Metrics: internalflows.LifecycleMetrics{
			SessionCreated: int(MetricSessionCreated),
			Logout:         int(MetricLogout),
		},
		Events: internalflows.LifecycleEvents{
			SessionStarted:     auditEventSessionStarted,
			Logout:             auditEventSessionLogout,
			PrincipalForgotten: auditEventPrincipalForgotten,
		},
		Errors: internalflows.LifecycleErrors{
			EngineNotReady:          ErrEngineNotReady,
			InvalidRequest:          ErrInvalidRequest,
			SessionNotFound:         ErrSessionNotFound,
			SessionStoreUnavailable: ErrSessionStoreUnavailable,
			ContextStoreUnavailable: ErrContextStoreUnavailable,
			TokenInvalid:            ErrTokenInvalid,
		},
	}
}

func mapSessionStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrSessionNotFound):
		return ErrSessionNotFound
	case errors.Is(err, session.ErrRedisUnavailable):
		return fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	default:
		return err
	}
}

func wrapContextStoreError(err error) error {
	if err == nil || errors.Is(err, ErrContextStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrContextStoreUnavailable, err)
}
