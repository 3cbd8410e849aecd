package goTrust

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/goTrust/internal/audit"
	internalflows "github.com/MrEthical07/goTrust/internal/flows"
	"github.com/MrEthical07/goTrust/internal/rate"
	"github.com/MrEthical07/goTrust/jwt"
	"github.com/MrEthical07/goTrust/session"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the adaptive session-trust engine. Build it with [New] and
// [Builder.Build]; all methods are safe for concurrent use.
type Engine struct {
	config       Config
	sessionStore *session.Store
	contextStore ContextStore
	geo          GeoResolver
	notifier     Notifier
	rateLimiter  *rate.Limiter
	jwtManager   *jwt.Manager
	scorer       RiskScorer
	policy       SessionPolicy
	audit        *audit.Dispatcher
	metrics      *Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
	now          func() time.Time
	flows        internalflows.Service
}

// Close stops the audit dispatcher after draining buffered events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Shutdown stops the audit dispatcher and waits for buffered events to reach
// the sink until ctx ends.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e == nil || e.audit == nil {
		return nil
	}
	return e.audit.Shutdown(ctx)
}

// AuditDropped returns the number of audit events discarded because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot never returns nil maps, even when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// SessionInfo returns a read-only view of a session. The one-time code is
// never exposed, only whether one is pending.
func (e *Engine) SessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	if sessionID == "" {
		return nil, ErrInvalidRequest
	}
	sess, err := e.sessionStore.Get(ctx, sessionID)
	if err != nil {
		return nil, mapSessionStoreError(err)
	}

	info := &SessionInfo{
		SessionID:       sess.SessionID,
		PrincipalID:     sess.PrincipalID,
		CreatedAt:       time.Unix(sess.CreatedAt, 0).UTC(),
		ExpiresAt:       time.Unix(sess.ExpiresAt, 0).UTC(),
		TTL:             time.Duration(sess.TTLSeconds) * time.Second,
		ReAuthenticated: sess.ReAuthenticated,
		StepUpPending:   sess.StepUpPending,
		Warning:         sess.Warning,
		RetryPath:       sess.RetryPath,
	}
	if sess.Challenge != nil {
		info.ChallengePending = true
		info.ChallengeExpires = sess.Challenge.ExpiresAt()
	}
	if e.rateLimiter != nil {
		attempts, err := e.rateLimiter.VerifyAttempts(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
		}
		info.VerifyAttempts = attempts
	}
	return info, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Health pings the session store and, when it supports it, the context
// store. The returned error wraps the first failing backend's sentinel.
func (e *Engine) Health(ctx context.Context) (HealthStatus, error) {
	if e == nil || e.sessionStore == nil {
		return HealthStatus{}, ErrEngineNotReady
	}

	var status HealthStatus
	latency, err := e.sessionStore.Ping(ctx)
	status.Latency = latency
	if err != nil {
		return status, mapSessionStoreError(err)
	}
	status.SessionStoreOK = true

	status.ContextStoreOK = true
	if p, ok := e.contextStore.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			status.ContextStoreOK = false
			return status, wrapContextStoreError(err)
		}
	}
	return status, nil
}
