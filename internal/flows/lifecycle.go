package flows

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goTrust/session"
)

// StartSessionResult is the flow-local login response shape.
type StartSessionResult struct {
	SessionID   string
	AccessToken string
	ExpiresAt   time.Time
}

// LifecycleMetrics carries metric IDs needed by session lifecycle flows.
type LifecycleMetrics struct {
	SessionCreated int
	Logout         int
}

// LifecycleEvents carries audit event names used by session lifecycle flows.
type LifecycleEvents struct {
	SessionStarted     string
	Logout             string
	PrincipalForgotten string
}

// LifecycleErrors carries host-level sentinel errors used by session lifecycle flows.
type LifecycleErrors struct {
	EngineNotReady          error
	InvalidRequest          error
	SessionNotFound         error
	SessionStoreUnavailable error
	ContextStoreUnavailable error
	TokenInvalid            error
}

// LifecycleDeps captures login, logout and principal removal dependencies.
type LifecycleDeps struct {
	InitialTTL time.Duration

	Now               func() time.Time
	NewSessionID      func() (string, error)
	IssueAccessToken  func(principalID, sessionID string) (string, error)
	ParseAccessToken  func(token string) (principalID, sessionID string, err error)
	SaveSession       func(ctx context.Context, sess *session.Session) error
	GetSession        func(ctx context.Context, sessionID string) (*session.Session, error)
	DeleteSession     func(ctx context.Context, sessionID string) error
	ListSessions      func(ctx context.Context, principalID string) ([]string, error)
	DeleteAllSessions func(ctx context.Context, principalID string) error
	DeleteContext     func(ctx context.Context, principalID string) error
	ResetThrottles    func(ctx context.Context, sessionID string) error

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, string, error, func() map[string]string)
	Warn      func(string, ...any)

	Metrics LifecycleMetrics
	Events  LifecycleEvents
	Errors  LifecycleErrors
}

// RunStartSession creates a fresh, not yet re-authenticated session for a
// principal the host has already authenticated.
func RunStartSession(ctx context.Context, principalID, contact string, deps LifecycleDeps) (*StartSessionResult, error) {
	if deps.SaveSession == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if principalID == "" {
		return nil, deps.Errors.InvalidRequest
	}

	sessionID, err := deps.NewSessionID()
	if err != nil {
		return nil, err
	}

	now := deps.Now()
	expiresAt := now.Add(deps.InitialTTL)
	sess := &session.Session{
		SessionID:   sessionID,
		PrincipalID: principalID,
		Contact:     contact,
		CreatedAt:   now.Unix(),
		ExpiresAt:   expiresAt.Unix(),
		TTLSeconds:  uint32(deps.InitialTTL / time.Second),
	}

	if err := deps.SaveSession(ctx, sess); err != nil {
		return nil, mapSessionError(err, deps.Errors.SessionNotFound, deps.Errors.SessionStoreUnavailable)
	}

	token, err := deps.IssueAccessToken(principalID, sessionID)
	if err != nil {
		if delErr := deps.DeleteSession(ctx, sessionID); delErr != nil && deps.Warn != nil {
			deps.Warn("goTrust: cleanup of session after token failure failed", "session_id", sessionID, "error", delErr)
		}
		return nil, err
	}

	deps.MetricInc(deps.Metrics.SessionCreated)
	deps.EmitAudit(ctx, deps.Events.SessionStarted, true, principalID, sessionID, nil, nil)

	return &StartSessionResult{
		SessionID:   sessionID,
		AccessToken: token,
		ExpiresAt:   time.Unix(sess.ExpiresAt, 0).UTC(),
	}, nil
}

// RunAuthenticate resolves a bearer token to a live session.
func RunAuthenticate(ctx context.Context, token string, deps LifecycleDeps) (string, string, error) {
	if deps.ParseAccessToken == nil || deps.GetSession == nil {
		return "", "", deps.Errors.EngineNotReady
	}

	principalID, sessionID, err := deps.ParseAccessToken(token)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", deps.Errors.TokenInvalid, err)
	}

	sess, err := deps.GetSession(ctx, sessionID)
	if err != nil {
		return "", "", mapSessionError(err, deps.Errors.SessionNotFound, deps.Errors.SessionStoreUnavailable)
	}
	if sess.PrincipalID != principalID {
		return "", "", deps.Errors.SessionNotFound
	}

	return principalID, sessionID, nil
}

// RunLogout deletes a session together with its re-authentication state and
// pending challenge. Logging out twice is not an error.
func RunLogout(ctx context.Context, sessionID string, deps LifecycleDeps) error {
	if deps.DeleteSession == nil {
		return deps.Errors.EngineNotReady
	}
	if sessionID == "" {
		return deps.Errors.InvalidRequest
	}

	principalID := ""
	if deps.GetSession != nil {
		sess, err := deps.GetSession(ctx, sessionID)
		switch {
		case err == nil:
			principalID = sess.PrincipalID
		case errors.Is(err, session.ErrSessionNotFound):
		default:
			return mapSessionError(err, deps.Errors.SessionNotFound, deps.Errors.SessionStoreUnavailable)
		}
	}

	if err := deps.DeleteSession(ctx, sessionID); err != nil {
		return mapSessionError(err, deps.Errors.SessionNotFound, deps.Errors.SessionStoreUnavailable)
	}

	if deps.ResetThrottles != nil {
		if err := deps.ResetThrottles(ctx, sessionID); err != nil && deps.Warn != nil {
			deps.Warn("goTrust: throttle reset on logout failed", "session_id", sessionID, "error", err)
		}
	}

	deps.MetricInc(deps.Metrics.Logout)
	deps.EmitAudit(ctx, deps.Events.Logout, true, principalID, sessionID, nil, nil)
	return nil
}

// RunForgetPrincipal removes the principal's expected context and every
// indexed session together with its throttle counters.
func RunForgetPrincipal(ctx context.Context, principalID string, deps LifecycleDeps) error {
	if deps.DeleteContext == nil || deps.DeleteAllSessions == nil {
		return deps.Errors.EngineNotReady
	}
	if principalID == "" {
		return deps.Errors.InvalidRequest
	}

	var sessionIDs []string
	if deps.ListSessions != nil {
		ids, err := deps.ListSessions(ctx, principalID)
		if err != nil {
			return mapSessionError(err, deps.Errors.SessionNotFound, deps.Errors.SessionStoreUnavailable)
		}
		sessionIDs = ids
	}

	if err := deps.DeleteContext(ctx, principalID); err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.ContextStoreUnavailable, err)
	}
	if err := deps.DeleteAllSessions(ctx, principalID); err != nil {
		return mapSessionError(err, deps.Errors.SessionNotFound, deps.Errors.SessionStoreUnavailable)
	}

	if deps.ResetThrottles != nil {
		for _, sid := range sessionIDs {
			if err := deps.ResetThrottles(ctx, sid); err != nil && deps.Warn != nil {
				deps.Warn("goTrust: throttle reset on forget failed", "session_id", sid, "error", err)
			}
		}
	}

	deps.EmitAudit(ctx, deps.Events.PrincipalForgotten, true, principalID, "", nil, func() map[string]string {
		return map[string]string{"sessions": strconv.Itoa(len(sessionIDs))}
	})
	return nil
}
