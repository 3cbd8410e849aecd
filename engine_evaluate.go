package goTrust

import (
	"context"
	"time"

	internalflows "github.com/MrEthical07/goTrust/internal/flows"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Evaluate scores one request and applies the resulting session policy.
//
// Unauthenticated requests pass through without touching any store. For an
// authenticated request the principal's expected context is refreshed, the
// session expiry is reset to the policy TTL, and a step-up redirect is returned
// when the request is high risk and the session has not re-authenticated.
// Store failures are fatal for the request and wrap
// [ErrContextStoreUnavailable] or [ErrSessionStoreUnavailable].
func (e *Engine) Evaluate(ctx context.Context, req EvaluateRequest) (*Decision, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}

	ctx, span := e.tracer.Start(ctx, "goTrust.Evaluate")
	defer span.End()

	start := time.Now()
	res, err := e.flows.Evaluate(ctx, internalflows.EvaluateRequest(req))
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricEvaluateLatency, time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluate failed")
		if e.logger != nil {
			e.logger.WarnContext(ctx, "goTrust: evaluate failed", "principal_id", req.PrincipalID, "error", err)
		}
		return nil, err
	}

	decision := &Decision{Action: ActionAllow}
	if res.PassThrough {
		span.SetAttributes(attribute.Bool("gotrust.pass_through", true))
		return decision, nil
	}

	decision.RiskScore = res.RiskScore
	decision.TTL = res.TTL
	decision.RequiresStepUp = res.RequiresStepUp
	decision.Warning = res.Warning
	decision.Factors = res.Factors
	if res.Redirect {
		decision.Action = ActionRedirect
		decision.RedirectPath = res.RedirectPath
		decision.RetryPath = res.RetryPath
	}

	span.SetAttributes(
		attribute.String("gotrust.action", decision.Action.String()),
		attribute.Float64("gotrust.risk_score", decision.RiskScore),
		attribute.Bool("gotrust.step_up", decision.RequiresStepUp),
		attribute.Bool("gotrust.first_observation", res.FirstObservation),
	)
	return decision, nil
}
