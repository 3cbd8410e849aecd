package goTrust

import "context"

// StartSession creates a session for a principal the host has already
// authenticated and returns a signed access token bound to it. contact is
// where step-up codes are sent.
func (e *Engine) StartSession(ctx context.Context, principalID, contact string) (*SessionHandle, error) {
	if e == nil || !e.flows.Initialized() {
		return nil, ErrEngineNotReady
	}
	ctx, span := e.tracer.Start(ctx, "goTrust.StartSession")
	defer span.End()

	res, err := e.flows.StartSession(ctx, principalID, contact)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &SessionHandle{
		SessionID:   res.SessionID,
		AccessToken: res.AccessToken,
		ExpiresAt:   res.ExpiresAt,
	}, nil
}

// Authenticate resolves an access token to its principal and live session.
// It fails with [ErrTokenInvalid] for a bad token and [ErrSessionNotFound]
// once the session has expired or been logged out.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (principalID, sessionID string, err error) {
	if e == nil || !e.flows.Initialized() {
		return "", "", ErrEngineNotReady
	}
	return e.flows.Authenticate(ctx, accessToken)
}

// Logout deletes the session, its re-authentication state and any pending
// challenge. Logging out an unknown session succeeds.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	return e.flows.Logout(ctx, sessionID)
}

// ForgetPrincipal deletes the principal's expected context and all of its
// sessions. The next request from the principal is a first observation.
func (e *Engine) ForgetPrincipal(ctx context.Context, principalID string) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	return e.flows.ForgetPrincipal(ctx, principalID)
}
