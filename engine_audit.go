package goTrust

import (
	"context"
	"errors"

	"github.com/MrEthical07/goTrust/internal/audit"
)

const (
	auditEventSessionStarted     = "session_started"
	auditEventSessionLogout      = "session_logout"
	auditEventStepUpRequired     = "step_up_required"
	auditEventContextChanged     = "context_changed"
	auditEventChallengeIssued    = "challenge_issued"
	auditEventChallengeResent    = "challenge_resent"
	auditEventChallengeVerified  = "challenge_verified"
	auditEventChallengeFailed    = "challenge_failed"
	auditEventNotificationFailed = "notification_failed"
	auditEventRateLimitTriggered = "rate_limit_triggered"
	auditEventPrincipalForgotten = "principal_forgotten"
)

// AuditErrorCode is the stable error label recorded on failed audit events.
type AuditErrorCode string

const (
	auditErrInvalidRequest    AuditErrorCode = "invalid_request"
	auditErrInvalidToken      AuditErrorCode = "invalid_token"
	auditErrSessionNotFound   AuditErrorCode = "session_not_found"
	auditErrChallengeAbsent   AuditErrorCode = "challenge_absent"
	auditErrChallengeExpired  AuditErrorCode = "challenge_expired"
	auditErrChallengeMismatch AuditErrorCode = "challenge_mismatch"
	auditErrRateLimited       AuditErrorCode = "rate_limited"
	auditErrDeliveryFailed    AuditErrorCode = "delivery_failed"
	auditErrContactMissing    AuditErrorCode = "contact_missing"
	auditErrUnavailable       AuditErrorCode = "backend_unavailable"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.NewEvent(eventType)
	event.Timestamp = e.now().UTC()
	event.PrincipalID = principalID
	event.SessionID = sessionID
	meta := metaFrom(ctx)
	event.IP = meta.clientIP
	event.Success = success
	if meta.userAgent != "" || meta.requestID != "" {
		if metadata == nil {
			metadata = make(map[string]string, 2)
		}
		if meta.userAgent != "" {
			metadata["user_agent"] = meta.userAgent
		}
		if meta.requestID != "" {
			metadata["request_id"] = meta.requestID
		}
	}
	event.Metadata = metadata
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidRequest):
		return auditErrInvalidRequest
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrChallengeAbsent):
		return auditErrChallengeAbsent
	case errors.Is(err, ErrChallengeExpired):
		return auditErrChallengeExpired
	case errors.Is(err, ErrChallengeMismatch):
		return auditErrChallengeMismatch
	case errors.Is(err, ErrChallengeRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrNotificationDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrContactMissing):
		return auditErrContactMissing
	case errors.Is(err, ErrContextStoreUnavailable),
		errors.Is(err, ErrSessionStoreUnavailable),
		errors.Is(err, ErrEngineNotReady):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
