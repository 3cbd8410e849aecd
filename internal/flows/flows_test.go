package flows

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goTrust/session"
)

var (
	errEngineNotReady   = errors.New("engine not ready")
	errInvalidRequest   = errors.New("invalid request")
	errContextStore     = errors.New("context store unavailable")
	errSessionStore     = errors.New("session store unavailable")
	errSessionNotFound  = errors.New("session not found")
	errAbsent           = errors.New("challenge absent")
	errExpired          = errors.New("challenge expired")
	errMismatch         = errors.New("challenge mismatch")
	errRateLimited      = errors.New("challenge rate limited")
	errDeliveryFailed   = errors.New("delivery failed")
	errContactMissing   = errors.New("contact missing")
	errLimiterThrottled = errors.New("limiter: rate limited")
)

type memSessions struct {
	mu   sync.Mutex
	data map[string]session.Session
}

func newMemSessions() *memSessions {
	return &memSessions{data: map[string]session.Session{}}
}

func (m *memSessions) put(s session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[s.SessionID] = s
}

func (m *memSessions) get(_ context.Context, sid string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[sid]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return &s, nil
}

func (m *memSessions) mutate(_ context.Context, sid string, fn func(*session.Session) error) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[sid]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	if s.Challenge != nil {
		c := *s.Challenge
		s.Challenge = &c
	}
	if err := fn(&s); err != nil {
		if errors.Is(err, session.ErrSkipWrite) {
			return &s, nil
		}
		return nil, err
	}
	m.data[sid] = s
	return &s, nil
}

type memContexts struct {
	data   map[string]ObservedContext
	writes int
	getErr error
}

func (m *memContexts) get(_ context.Context, principalID string) (*ObservedContext, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.data[principalID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memContexts) upsert(_ context.Context, principalID string, obs ObservedContext) (bool, error) {
	if cur, ok := m.data[principalID]; ok && cur == obs {
		return false, nil
	}
	m.data[principalID] = obs
	m.writes++
	return true, nil
}

type recorder struct {
	metrics map[int]int
	events  []string
}

func newRecorder() *recorder {
	return &recorder{metrics: map[int]int{}}
}

func (r *recorder) inc(id int) { r.metrics[id]++ }

func (r *recorder) emit(_ context.Context, event string, _ bool, _, _ string, _ error, meta func() map[string]string) {
	if meta != nil {
		_ = meta()
	}
	r.events = append(r.events, event)
}

func (r *recorder) saw(event string) bool {
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func testScore(obs ObservedContext, stored *ObservedContext) (float64, []string) {
	if stored == nil {
		return 0.9, []string{"first_observation"}
	}
	var score float64
	var factors []string
	if obs.Address != stored.Address {
		score += 0.3
		factors = append(factors, "address_mismatch")
	}
	if obs.ClientSignature != stored.ClientSignature {
		score += 0.2
		factors = append(factors, "signature_mismatch")
	}
	if obs.Location != "Unknown" && obs.Location != stored.Location {
		score += 0.4
		factors = append(factors, "location_mismatch")
	}
	if score > 1 {
		score = 1
	}
	return score, factors
}

func testDecide(score float64) PolicyOutcome {
	switch {
	case score > 0.7:
		return PolicyOutcome{TTL: 300 * time.Second, RequiresStepUp: true, Tier: TierHigh}
	case score > 0.3:
		return PolicyOutcome{TTL: 1800 * time.Second, Tier: TierMedium}
	default:
		return PolicyOutcome{TTL: 86400 * time.Second, Tier: TierLow}
	}
}

type evalFixture struct {
	sessions *memSessions
	contexts *memContexts
	rec      *recorder
	now      time.Time
	location string
	deps     EvaluateDeps
}

func newEvalFixture() *evalFixture {
	f := &evalFixture{
		sessions: newMemSessions(),
		contexts: &memContexts{data: map[string]ObservedContext{}},
		rec:      newRecorder(),
		now:      time.Unix(1700000000, 0),
		location: "Paris",
	}
	f.sessions.put(session.Session{
		SessionID:   "sid",
		PrincipalID: "p-1",
		Contact:     "alice@example.com",
		CreatedAt:   f.now.Unix(),
		ExpiresAt:   f.now.Add(24 * time.Hour).Unix(),
		TTLSeconds:  86400,
	})
	f.deps = EvaluateDeps{
		UnknownLocation:     "Unknown",
		ChallengePath:       "/reauthenticate",
		DefaultRedirectPath: "/",
		HighRiskTTL:         300 * time.Second,
		WarningWindow:       60 * time.Second,
		Now:                 func() time.Time { return f.now },
		ResolveLocation:     func(context.Context, string) string { return f.location },
		GetContext:          f.contexts.get,
		UpsertContext:       f.contexts.upsert,
		Score:               testScore,
		Decide:              testDecide,
		MutateSession:       f.sessions.mutate,
		MetricInc:           f.rec.inc,
		EmitAudit:           f.rec.emit,
		Metrics: EvaluateMetrics{
			Allowed: 1, Redirected: 2, PassThrough: 3, Failure: 4, FirstObservation: 5,
			ContextUpdated: 6, GeoDegraded: 7, SessionWarning: 8, TierLow: 9, TierMedium: 10, TierHigh: 11,
		},
		Events: EvaluateEvents{StepUpRequired: "step_up_required", ContextChanged: "context_changed"},
		Errors: EvaluateErrors{
			EngineNotReady:          errEngineNotReady,
			InvalidRequest:          errInvalidRequest,
			ContextStoreUnavailable: errContextStore,
			SessionStoreUnavailable: errSessionStore,
			SessionNotFound:         errSessionNotFound,
		},
	}
	return f
}

func (f *evalFixture) request(path string) EvaluateRequest {
	return EvaluateRequest{
		PrincipalID:     "p-1",
		SessionID:       "sid",
		Address:         "203.0.113.5",
		ClientSignature: "UA-1",
		Path:            path,
		Authenticated:   true,
	}
}

func TestEvaluateUnauthenticatedPassThrough(t *testing.T) {
	f := newEvalFixture()
	res, err := RunEvaluate(context.Background(), EvaluateRequest{Path: "/x"}, f.deps)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.PassThrough || res.Redirect {
		t.Fatalf("expected pass-through, got %+v", res)
	}
	if f.contexts.writes != 0 || len(f.contexts.data) != 0 {
		t.Fatal("pass-through must not touch the context store")
	}
	sess, _ := f.sessions.get(context.Background(), "sid")
	if sess.TTLSeconds != 86400 || sess.RetryPath != "" {
		t.Fatalf("pass-through must not touch the session: %+v", sess)
	}
}

func TestEvaluateFirstObservationRedirects(t *testing.T) {
	f := newEvalFixture()
	res, err := RunEvaluate(context.Background(), f.request("/transfer"), f.deps)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.Redirect || res.RedirectPath != "/reauthenticate" || res.RetryPath != "/transfer" {
		t.Fatalf("expected redirect to challenge, got %+v", res)
	}
	if res.RiskScore != 0.9 || res.TTL != 300*time.Second || !res.RequiresStepUp || !res.FirstObservation {
		t.Fatalf("unexpected decision: %+v", res)
	}

	sess, _ := f.sessions.get(context.Background(), "sid")
	if sess.ExpiresAt != f.now.Add(300*time.Second).Unix() || !sess.StepUpPending || sess.RetryPath != "/transfer" {
		t.Fatalf("unexpected session after redirect: %+v", sess)
	}
	if f.contexts.data["p-1"].Address != "203.0.113.5" {
		t.Fatal("expected context created")
	}
	if !f.rec.saw("step_up_required") {
		t.Fatal("expected step_up_required audit event")
	}
	if f.rec.saw("context_changed") {
		t.Fatal("first observation is not a context change")
	}
}

func TestEvaluateLowRiskAfterRedirectFollowsPolicy(t *testing.T) {
	f := newEvalFixture()
	ctx := context.Background()

	if _, err := RunEvaluate(ctx, f.request("/transfer"), f.deps); err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	res, err := RunEvaluate(ctx, f.request("/accounts"), f.deps)
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if res.RiskScore != 0 {
		t.Fatalf("expected zero score for unchanged context, got %v", res.RiskScore)
	}
	if res.Redirect || res.RequiresStepUp || res.TTL != 86400*time.Second {
		t.Fatalf("low-risk request must follow the low tier, got %+v", res)
	}

	sess, _ := f.sessions.get(ctx, "sid")
	if sess.StepUpPending || sess.ExpiresAt != f.now.Add(86400*time.Second).Unix() {
		t.Fatalf("expected pending flag cleared and low-risk expiry, got %+v", sess)
	}
}

func TestEvaluateStickyStepUpKeepsRedirecting(t *testing.T) {
	f := newEvalFixture()
	f.deps.StickyStepUp = true
	ctx := context.Background()

	if _, err := RunEvaluate(ctx, f.request("/transfer"), f.deps); err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	res, err := RunEvaluate(ctx, f.request("/accounts"), f.deps)
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if res.RiskScore != 0 || !res.Redirect || res.TTL != 300*time.Second {
		t.Fatalf("sticky step-up must redirect with capped TTL, got %+v", res)
	}
	if res.RetryPath != "/accounts" {
		t.Fatalf("retry path should follow the latest request, got %q", res.RetryPath)
	}

	s, _ := f.sessions.get(ctx, "sid")
	s.ReAuthenticated = true
	f.sessions.put(*s)
	res, err = RunEvaluate(ctx, f.request("/accounts"), f.deps)
	if err != nil {
		t.Fatalf("third evaluate: %v", err)
	}
	if res.Redirect || res.TTL != 86400*time.Second {
		t.Fatalf("re-authenticated session must leave sticky mode, got %+v", res)
	}
}

func TestEvaluateChallengePathNeverRedirects(t *testing.T) {
	f := newEvalFixture()
	res, err := RunEvaluate(context.Background(), f.request("/reauthenticate"), f.deps)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Redirect || !res.RequiresStepUp {
		t.Fatalf("expected step-up without redirect on challenge path, got %+v", res)
	}
}

func TestEvaluateReAuthenticatedAllowsHighRisk(t *testing.T) {
	f := newEvalFixture()
	s, _ := f.sessions.get(context.Background(), "sid")
	s.ReAuthenticated = true
	f.sessions.put(*s)

	res, err := RunEvaluate(context.Background(), f.request("/transfer"), f.deps)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Redirect || !res.RequiresStepUp || res.TTL != 300*time.Second {
		t.Fatalf("expected allow with high-risk TTL, got %+v", res)
	}
}

func TestEvaluateMediumRiskAndContextChange(t *testing.T) {
	f := newEvalFixture()
	f.contexts.data["p-1"] = ObservedContext{Address: "198.51.100.1", ClientSignature: "UA-2", Location: "Paris"}

	res, err := RunEvaluate(context.Background(), f.request("/"), f.deps)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Redirect || res.TTL != 1800*time.Second {
		t.Fatalf("expected medium tier allow, got %+v", res)
	}
	if strings.Join(res.Factors, ",") != "address_mismatch,signature_mismatch" {
		t.Fatalf("unexpected factors %v", res.Factors)
	}
	if !res.ContextWritten || !f.rec.saw("context_changed") {
		t.Fatal("expected context overwrite with audit")
	}
	if f.rec.metrics[f.deps.Metrics.TierMedium] != 1 {
		t.Fatal("expected medium tier metric")
	}
}

func TestEvaluateUnknownLocationDegradesWithoutPenalty(t *testing.T) {
	f := newEvalFixture()
	f.location = ""
	f.contexts.data["p-1"] = ObservedContext{Address: "203.0.113.5", ClientSignature: "UA-1", Location: "Paris"}

	res, err := RunEvaluate(context.Background(), f.request("/"), f.deps)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Location != "Unknown" || res.RiskScore != 0 {
		t.Fatalf("expected unknown location and zero score, got %+v", res)
	}
	if f.rec.metrics[f.deps.Metrics.GeoDegraded] != 1 {
		t.Fatal("expected degraded lookup metric")
	}
}

func TestEvaluateWarningNearExpiry(t *testing.T) {
	f := newEvalFixture()
	f.contexts.data["p-1"] = ObservedContext{Address: "203.0.113.5", ClientSignature: "UA-1", Location: "Paris"}
	s, _ := f.sessions.get(context.Background(), "sid")
	s.ExpiresAt = f.now.Add(30 * time.Second).Unix()
	f.sessions.put(*s)

	res, err := RunEvaluate(context.Background(), f.request("/"), f.deps)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.Warning {
		t.Fatal("expected warning with 30s left")
	}

	res, err = RunEvaluate(context.Background(), f.request("/"), f.deps)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Warning {
		t.Fatal("warning must clear once the TTL was extended")
	}
}

func TestEvaluateContextStoreFailure(t *testing.T) {
	f := newEvalFixture()
	f.contexts.getErr = errors.New("boom")

	if _, err := RunEvaluate(context.Background(), f.request("/"), f.deps); !errors.Is(err, errContextStore) {
		t.Fatalf("expected context store error, got %v", err)
	}
}

func TestEvaluateSessionOwnershipAndMissing(t *testing.T) {
	f := newEvalFixture()
	req := f.request("/")
	req.PrincipalID = "p-2"
	if _, err := RunEvaluate(context.Background(), req, f.deps); !errors.Is(err, errSessionNotFound) {
		t.Fatalf("expected not found for foreign session, got %v", err)
	}

	req = f.request("/")
	req.SessionID = "missing"
	if _, err := RunEvaluate(context.Background(), req, f.deps); !errors.Is(err, errSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	req.SessionID = ""
	if _, err := RunEvaluate(context.Background(), req, f.deps); !errors.Is(err, errInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestSafeRetryPath(t *testing.T) {
	cases := map[string]string{
		"/transfer?x=1":        "/transfer?x=1",
		"":                     "/",
		"https://evil.example": "/",
		"//evil.example":       "/",
		"/\\evil":              "/",
		"/reauthenticate":      "/",
		"/reauthenticate?a=b":  "/",
	}
	for in, want := range cases {
		if got := SafeRetryPath(in, "/reauthenticate", "/"); got != want {
			t.Fatalf("SafeRetryPath(%q) = %q, want %q", in, got, want)
		}
	}
}

type challengeFixture struct {
	sessions *memSessions
	rec      *recorder
	now      time.Time
	sent     []string
	sendErr  error
	codes    []string
	deps     ChallengeDeps
	verifies int
}

func newChallengeFixture() *challengeFixture {
	f := &challengeFixture{
		sessions: newMemSessions(),
		rec:      newRecorder(),
		now:      time.Unix(1700000000, 0),
		codes:    []string{"111111", "222222", "333333"},
	}
	f.sessions.put(session.Session{
		SessionID:     "sid",
		PrincipalID:   "p-1",
		Contact:       "alice@example.com",
		ExpiresAt:     f.now.Add(300 * time.Second).Unix(),
		StepUpPending: true,
		RetryPath:     "/transfer",
	})
	next := 0
	f.deps = ChallengeDeps{
		CodeTTL:             5 * time.Minute,
		DefaultRedirectPath: "/",
		ChallengePath:       "/reauthenticate",
		Now:                 func() time.Time { return f.now },
		GenerateCode: func() (string, error) {
			c := f.codes[next%len(f.codes)]
			next++
			return c, nil
		},
		HashCode: func(c string) [32]byte {
			var h [32]byte
			copy(h[:], c)
			return h
		},
		CodeMatches: func(stored [32]byte, c string) bool {
			var h [32]byte
			copy(h[:], c)
			return h == stored
		},
		GetSession:    f.sessions.get,
		MutateSession: f.sessions.mutate,
		Send: func(_ context.Context, to, subject, body string) error {
			if f.sendErr != nil {
				return f.sendErr
			}
			f.sent = append(f.sent, to+"|"+subject+"|"+body)
			return nil
		},
		CheckVerify: func(context.Context, string) error {
			if f.verifies >= 3 {
				return errLimiterThrottled
			}
			return nil
		},
		RecordVerifyFailure: func(context.Context, string) error {
			f.verifies++
			return nil
		},
		ResetVerify: func(context.Context, string) error {
			f.verifies = 0
			return nil
		},
		LimiterRateLimited: errLimiterThrottled,
		MetricInc:          f.rec.inc,
		EmitAudit:          f.rec.emit,
		Metrics: ChallengeMetrics{
			Issued: 1, Reused: 2, Resent: 3, Verified: 4, Mismatch: 5, Expired: 6, RateLimited: 7, NotificationFailed: 8,
		},
		Events: ChallengeEvents{
			Issued: "challenge_issued", Resent: "challenge_resent", Verified: "challenge_verified",
			Failed: "challenge_failed", NotificationFailed: "notification_failed", RateLimited: "rate_limit_triggered",
		},
		Errors: ChallengeErrors{
			EngineNotReady:          errEngineNotReady,
			InvalidRequest:          errInvalidRequest,
			SessionNotFound:         errSessionNotFound,
			SessionStoreUnavailable: errSessionStore,
			Absent:                  errAbsent,
			Expired:                 errExpired,
			Mismatch:                errMismatch,
			RateLimited:             errRateLimited,
			DeliveryFailed:          errDeliveryFailed,
			ContactMissing:          errContactMissing,
		},
	}
	return f
}

func TestBeginChallengeIssuesThenReuses(t *testing.T) {
	f := newChallengeFixture()
	ctx := context.Background()

	res, err := RunBeginChallenge(ctx, "sid", f.deps)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if !res.Issued || !res.Delivered || !res.ExpiresAt.Equal(f.now.Add(5*time.Minute).UTC()) {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(f.sent) != 1 || f.sent[0] != "alice@example.com|Your OTP for Re-Authentication|Your OTP is 111111. It expires in 5 minutes." {
		t.Fatalf("unexpected message: %v", f.sent)
	}

	res, err = RunBeginChallenge(ctx, "sid", f.deps)
	if err != nil {
		t.Fatalf("second begin: %v", err)
	}
	if !res.Reused || res.Issued || len(f.sent) != 1 {
		t.Fatalf("expected reuse without sending, got %+v (sent %d)", res, len(f.sent))
	}

	sess, _ := f.sessions.get(ctx, "sid")
	if sess.Challenge == nil || string(sess.Challenge.CodeHash[:6]) != "111111" {
		t.Fatal("expected original challenge retained")
	}
}

func TestBeginChallengeReissuesAfterExpiry(t *testing.T) {
	f := newChallengeFixture()
	ctx := context.Background()

	if _, err := RunBeginChallenge(ctx, "sid", f.deps); err != nil {
		t.Fatalf("begin: %v", err)
	}
	f.now = f.now.Add(6 * time.Minute)
	res, err := RunBeginChallenge(ctx, "sid", f.deps)
	if err != nil {
		t.Fatalf("begin after expiry: %v", err)
	}
	if !res.Issued || len(f.sent) != 2 {
		t.Fatalf("expected new issue, got %+v", res)
	}
}

func TestVerifySuccessReturnsRetryPath(t *testing.T) {
	f := newChallengeFixture()
	ctx := context.Background()

	if _, err := RunBeginChallenge(ctx, "sid", f.deps); err != nil {
		t.Fatalf("begin: %v", err)
	}
	res, err := RunVerifyChallenge(ctx, "sid", "111111", f.deps)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.RedirectPath != "/transfer" {
		t.Fatalf("expected retry path, got %q", res.RedirectPath)
	}
	sess, _ := f.sessions.get(ctx, "sid")
	if !sess.ReAuthenticated || sess.StepUpPending || sess.Challenge != nil || sess.RetryPath != "" {
		t.Fatalf("unexpected session after verify: %+v", sess)
	}

	if _, err := RunVerifyChallenge(ctx, "sid", "111111", f.deps); !errors.Is(err, errAbsent) {
		t.Fatalf("expected absent after success, got %v", err)
	}
}

func TestVerifyMismatchKeepsChallenge(t *testing.T) {
	f := newChallengeFixture()
	ctx := context.Background()

	if _, err := RunBeginChallenge(ctx, "sid", f.deps); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := RunVerifyChallenge(ctx, "sid", "999999", f.deps); !errors.Is(err, errMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	sess, _ := f.sessions.get(ctx, "sid")
	if sess.Challenge == nil || sess.ReAuthenticated {
		t.Fatalf("mismatch must retain challenge: %+v", sess)
	}
	if _, err := RunVerifyChallenge(ctx, "sid", "111111", f.deps); err != nil {
		t.Fatalf("correct code after mismatch: %v", err)
	}
}

func TestVerifyExpiredClearsChallenge(t *testing.T) {
	f := newChallengeFixture()
	ctx := context.Background()

	if _, err := RunBeginChallenge(ctx, "sid", f.deps); err != nil {
		t.Fatalf("begin: %v", err)
	}
	f.now = f.now.Add(5*time.Minute + time.Second)
	if _, err := RunVerifyChallenge(ctx, "sid", "111111", f.deps); !errors.Is(err, errExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	sess, _ := f.sessions.get(ctx, "sid")
	if sess.Challenge != nil || sess.ReAuthenticated {
		t.Fatalf("expired challenge must be cleared: %+v", sess)
	}
}

func TestVerifyExpiryIsExactToTheMillisecond(t *testing.T) {
	f := newChallengeFixture()
	ctx := context.Background()

	if _, err := RunBeginChallenge(ctx, "sid", f.deps); err != nil {
		t.Fatalf("begin: %v", err)
	}
	issued := f.now

	f.now = issued.Add(5 * time.Minute)
	if _, err := RunVerifyChallenge(ctx, "sid", "999999", f.deps); !errors.Is(err, errMismatch) {
		t.Fatalf("code must still be live at its expiry instant, got %v", err)
	}

	f.now = issued.Add(5*time.Minute + time.Millisecond)
	if _, err := RunVerifyChallenge(ctx, "sid", "111111", f.deps); !errors.Is(err, errExpired) {
		t.Fatalf("expected expired one millisecond past expiry, got %v", err)
	}
}

func TestVerifyEmptyCodeAndAbsent(t *testing.T) {
	f := newChallengeFixture()
	ctx := context.Background()

	if _, err := RunVerifyChallenge(ctx, "sid", "  ", f.deps); !errors.Is(err, errInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if _, err := RunVerifyChallenge(ctx, "sid", "123456", f.deps); !errors.Is(err, errAbsent) {
		t.Fatalf("expected absent, got %v", err)
	}
}

func TestVerifyThrottledAfterFailures(t *testing.T) {
	f := newChallengeFixture()
	ctx := context.Background()

	if _, err := RunBeginChallenge(ctx, "sid", f.deps); err != nil {
		t.Fatalf("begin: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := RunVerifyChallenge(ctx, "sid", "000000", f.deps); !errors.Is(err, errMismatch) {
			t.Fatalf("attempt %d: expected mismatch, got %v", i, err)
		}
	}
	if _, err := RunVerifyChallenge(ctx, "sid", "111111", f.deps); !errors.Is(err, errRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	sess, _ := f.sessions.get(ctx, "sid")
	if sess.Challenge == nil {
		t.Fatal("throttle must not touch the pending challenge")
	}
	if !f.rec.saw("rate_limit_triggered") {
		t.Fatal("expected rate limit audit event")
	}
}

func TestResendInvalidatesOldCode(t *testing.T) {
	f := newChallengeFixture()
	ctx := context.Background()

	if _, err := RunBeginChallenge(ctx, "sid", f.deps); err != nil {
		t.Fatalf("begin: %v", err)
	}
	res, err := RunResendChallenge(ctx, "sid", f.deps)
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if !res.Issued || !strings.Contains(f.sent[1], "Your New OTP for Re-Authentication|Your new OTP is 222222.") {
		t.Fatalf("unexpected resend: %+v %v", res, f.sent)
	}

	if _, err := RunVerifyChallenge(ctx, "sid", "111111", f.deps); !errors.Is(err, errMismatch) {
		t.Fatalf("old code must be unverifiable, got %v", err)
	}
	if _, err := RunVerifyChallenge(ctx, "sid", "222222", f.deps); err != nil {
		t.Fatalf("new code: %v", err)
	}
}

func TestResendThrottle(t *testing.T) {
	f := newChallengeFixture()
	f.deps.CheckResend = func(context.Context, string) error { return errLimiterThrottled }

	if _, err := RunResendChallenge(context.Background(), "sid", f.deps); !errors.Is(err, errRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if len(f.sent) != 0 {
		t.Fatal("throttled resend must not send")
	}

	f.deps.CheckResend = func(context.Context, string) error { return errors.New("redis down") }
	if _, err := RunResendChallenge(context.Background(), "sid", f.deps); !errors.Is(err, errSessionStore) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestDeliveryFailureKeepsChallengeVerifiable(t *testing.T) {
	f := newChallengeFixture()
	f.sendErr = errors.New("smtp down")
	var warned bool
	f.deps.Warn = func(string, ...any) { warned = true }
	ctx := context.Background()

	res, err := RunBeginChallenge(ctx, "sid", f.deps)
	if !errors.Is(err, errDeliveryFailed) {
		t.Fatalf("expected delivery failure, got %v", err)
	}
	if res == nil || !res.Issued || res.Delivered {
		t.Fatalf("expected issued undelivered result, got %+v", res)
	}
	if !warned || !f.rec.saw("notification_failed") {
		t.Fatal("expected warning log and audit event")
	}
	if _, err := RunVerifyChallenge(ctx, "sid", "111111", f.deps); err != nil {
		t.Fatalf("challenge must remain verifiable: %v", err)
	}
}

func TestIssueRequiresContact(t *testing.T) {
	f := newChallengeFixture()
	s, _ := f.sessions.get(context.Background(), "sid")
	s.Contact = ""
	f.sessions.put(*s)

	if _, err := RunBeginChallenge(context.Background(), "sid", f.deps); !errors.Is(err, errContactMissing) {
		t.Fatalf("expected contact missing, got %v", err)
	}
}

func TestChallengeMissingSession(t *testing.T) {
	f := newChallengeFixture()
	if _, err := RunBeginChallenge(context.Background(), "nope", f.deps); !errors.Is(err, errSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDescribeTTL(t *testing.T) {
	cases := map[time.Duration]string{
		5 * time.Minute:  "5 minutes",
		time.Minute:      "1 minute",
		90 * time.Second: "90 seconds",
	}
	for in, want := range cases {
		if got := describeTTL(in); got != want {
			t.Fatalf("describeTTL(%v) = %q, want %q", in, got, want)
		}
	}
}

func newLifecycleFixture() (*memSessions, *recorder, LifecycleDeps, map[string]bool) {
	sessions := newMemSessions()
	rec := newRecorder()
	contexts := map[string]bool{"p-1": true}
	n := 0
	deps := LifecycleDeps{
		InitialTTL: 24 * time.Hour,
		Now:        func() time.Time { return time.Unix(1700000000, 0) },
		NewSessionID: func() (string, error) {
			n++
			return "sid-" + string(rune('a'+n)), nil
		},
		IssueAccessToken: func(p, s string) (string, error) { return p + "." + s, nil },
		ParseAccessToken: func(tok string) (string, string, error) {
			parts := strings.SplitN(tok, ".", 2)
			if len(parts) != 2 {
				return "", "", errors.New("bad token")
			}
			return parts[0], parts[1], nil
		},
		SaveSession: func(_ context.Context, s *session.Session) error {
			sessions.put(*s)
			return nil
		},
		GetSession: sessions.get,
		DeleteSession: func(_ context.Context, sid string) error {
			sessions.mu.Lock()
			defer sessions.mu.Unlock()
			delete(sessions.data, sid)
			return nil
		},
		DeleteAllSessions: func(_ context.Context, p string) error {
			sessions.mu.Lock()
			defer sessions.mu.Unlock()
			for id, s := range sessions.data {
				if s.PrincipalID == p {
					delete(sessions.data, id)
				}
			}
			return nil
		},
		DeleteContext: func(_ context.Context, p string) error {
			delete(contexts, p)
			return nil
		},
		MetricInc: rec.inc,
		EmitAudit: rec.emit,
		Metrics:   LifecycleMetrics{SessionCreated: 1, Logout: 2},
		Events:    LifecycleEvents{SessionStarted: "session_started", Logout: "session_logout", PrincipalForgotten: "principal_forgotten"},
		Errors: LifecycleErrors{
			EngineNotReady:          errEngineNotReady,
			InvalidRequest:          errInvalidRequest,
			SessionNotFound:         errSessionNotFound,
			SessionStoreUnavailable: errSessionStore,
			ContextStoreUnavailable: errContextStore,
			TokenInvalid:            errors.New("token invalid"),
		},
	}
	return sessions, rec, deps, contexts
}

func TestStartAuthenticateLogout(t *testing.T) {
	sessions, rec, deps, _ := newLifecycleFixture()
	ctx := context.Background()

	res, err := RunStartSession(ctx, "p-1", "alice@example.com", deps)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	sess, err := sessions.get(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.ReAuthenticated || sess.TTLSeconds != 86400 || sess.Contact != "alice@example.com" {
		t.Fatalf("unexpected new session: %+v", sess)
	}

	p, sid, err := RunAuthenticate(ctx, res.AccessToken, deps)
	if err != nil || p != "p-1" || sid != res.SessionID {
		t.Fatalf("authenticate: %q %q %v", p, sid, err)
	}

	if err := RunLogout(ctx, res.SessionID, deps); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := RunLogout(ctx, res.SessionID, deps); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if _, _, err := RunAuthenticate(ctx, res.AccessToken, deps); !errors.Is(err, errSessionNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
	if !rec.saw("session_started") || !rec.saw("session_logout") {
		t.Fatalf("missing audit events: %v", rec.events)
	}
}

func TestForgetPrincipal(t *testing.T) {
	sessions, _, deps, contexts := newLifecycleFixture()
	ctx := context.Background()

	if _, err := RunStartSession(ctx, "p-1", "a@example.com", deps); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := RunForgetPrincipal(ctx, "p-1", deps); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if contexts["p-1"] || len(sessions.data) != 0 {
		t.Fatal("expected context and sessions removed")
	}
}

func TestForgetPrincipalResetsThrottlesOfEverySession(t *testing.T) {
	sessions, rec, deps, _ := newLifecycleFixture()
	ctx := context.Background()

	var reset []string
	deps.ListSessions = func(_ context.Context, p string) ([]string, error) {
		sessions.mu.Lock()
		defer sessions.mu.Unlock()
		var ids []string
		for id, s := range sessions.data {
			if s.PrincipalID == p {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)
		return ids, nil
	}
	deps.ResetThrottles = func(_ context.Context, sid string) error {
		reset = append(reset, sid)
		return nil
	}

	a, _ := RunStartSession(ctx, "p-1", "a@example.com", deps)
	b, _ := RunStartSession(ctx, "p-1", "a@example.com", deps)
	if _, err := RunStartSession(ctx, "p-2", "b@example.com", deps); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := RunForgetPrincipal(ctx, "p-1", deps); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if len(reset) != 2 || reset[0] != a.SessionID || reset[1] != b.SessionID {
		t.Fatalf("expected throttles reset for %s and %s, got %v", a.SessionID, b.SessionID, reset)
	}
	if len(sessions.data) != 1 {
		t.Fatalf("other principal's session must survive, left %d", len(sessions.data))
	}
	if !rec.saw("principal_forgotten") {
		t.Fatal("expected principal_forgotten audit event")
	}
}

func TestForgetPrincipalListFailureKeepsContext(t *testing.T) {
	_, _, deps, contexts := newLifecycleFixture()
	deps.ListSessions = func(context.Context, string) ([]string, error) {
		return nil, session.ErrRedisUnavailable
	}

	err := RunForgetPrincipal(context.Background(), "p-1", deps)
	if !errors.Is(err, errSessionStore) {
		t.Fatalf("expected session store error, got %v", err)
	}
	if !contexts["p-1"] {
		t.Fatal("context must not be deleted when sessions cannot be listed")
	}
}
