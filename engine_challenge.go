package goTrust

import (
	"context"

	"go.opentelemetry.io/otel/codes"
)

// BeginChallenge returns the session's pending challenge when it is still
// valid, without sending anything. Otherwise it issues a new code and sends
// it to the session contact.
//
// When delivery fails the challenge stays issued and verifiable; the result is
// returned together with an error matching [ErrNotificationDeliveryFailed].
func (e *Engine) BeginChallenge(ctx context.Context, sessionID string) (*ChallengeResult, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	ctx, span := e.tracer.Start(ctx, "goTrust.BeginChallenge")
	defer span.End()

	res, err := e.flows.BeginChallenge(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin challenge failed")
	}
	if res == nil {
		return nil, err
	}
	return &ChallengeResult{
		ExpiresAt: res.ExpiresAt,
		Issued:    res.Issued,
		Reused:    res.Reused,
		Delivered: res.Delivered,
		Warning:   res.Warning,
	}, err
}

// ResendChallenge always issues a new code, making the previous one
// unverifiable. Resends are throttled per session and fail with
// [ErrChallengeRateLimited] once the window allowance is used up.
func (e *Engine) ResendChallenge(ctx context.Context, sessionID string) (*ChallengeResult, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	ctx, span := e.tracer.Start(ctx, "goTrust.ResendChallenge")
	defer span.End()

	res, err := e.flows.ResendChallenge(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resend challenge failed")
	}
	if res == nil {
		return nil, err
	}
	return &ChallengeResult{
		ExpiresAt: res.ExpiresAt,
		Issued:    res.Issued,
		Reused:    res.Reused,
		Delivered: res.Delivered,
		Warning:   res.Warning,
	}, err
}

// VerifyChallenge checks code against the pending challenge.
//
// On success the session is marked re-authenticated and the saved retry path
// (or the default redirect path) is returned. A wrong code keeps the challenge
// pending; an expired one is cleared. Repeated failures are throttled.
func (e *Engine) VerifyChallenge(ctx context.Context, sessionID, code string) (*VerifyResult, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	ctx, span := e.tracer.Start(ctx, "goTrust.VerifyChallenge")
	defer span.End()

	res, err := e.flows.VerifyChallenge(ctx, sessionID, code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verify challenge failed")
		return nil, err
	}
	return &VerifyResult{RedirectPath: res.RedirectPath}, nil
}
