package goTrust

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goTrust/geo"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type sentMessage struct {
	to, subject, body string
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (c *captureNotifier) Send(_ context.Context, to, subject, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Failed sends are recorded too so tests can still read the code.
	c.sent = append(c.sent, sentMessage{to: to, subject: subject, body: body})
	return c.err
}

func (c *captureNotifier) fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *captureNotifier) last() sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return sentMessage{}
	}
	return c.sent[len(c.sent)-1]
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

var otpPattern = regexp.MustCompile(`\b\d{6}\b`)

func (c *captureNotifier) lastCode(t testing.TB) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		t.Fatal("no notification sent")
	}
	code := otpPattern.FindString(c.sent[len(c.sent)-1].body)
	if code == "" {
		t.Fatalf("no code in %q", c.sent[len(c.sent)-1].body)
	}
	return code
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func trustTestConfig(t testing.TB) Config {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.Audit.Enabled = true
	cfg.Metrics.Enabled = true
	return cfg
}

// Addresses in 198.51.100.0/24 resolve to Berlin, 203.0.113.0/24 to Sydney.
func testResolver(t testing.TB) GeoResolver {
	t.Helper()
	r, err := geo.NewStaticResolver(map[string]string{
		"198.51.100.0/24": "Berlin",
		"203.0.113.0/24":  "Sydney",
	}, "Unknown")
	if err != nil {
		t.Fatalf("static resolver: %v", err)
	}
	return r
}

type testEnv struct {
	engine   *Engine
	redis    *miniredis.Miniredis
	notifier *captureNotifier
	clock    *testClock
	audit    *ChannelSink
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := trustTestConfig(t)
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		redis:    mr,
		notifier: &captureNotifier{},
		clock:    newTestClock(),
		audit:    NewChannelSink(256),
	}
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithNotifier(env.notifier).
		WithGeoResolver(testResolver(t)).
		WithAuditSink(env.audit).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) start(t *testing.T, principalID string) *SessionHandle {
	t.Helper()
	h, err := env.engine.StartSession(context.Background(), principalID, principalID+"@example.com")
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return h
}

func (env *testEnv) evaluate(t *testing.T, principalID string, h *SessionHandle, address, signature, path string) *Decision {
	t.Helper()
	d, err := env.engine.Evaluate(context.Background(), EvaluateRequest{
		PrincipalID:     principalID,
		SessionID:       h.SessionID,
		Address:         address,
		ClientSignature: signature,
		Path:            path,
		Authenticated:   true,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return d
}

// settle completes a first-observation step-up so later requests are scored
// against a known context.
func (env *testEnv) settle(t *testing.T, principalID string, h *SessionHandle, address, signature string) {
	t.Helper()
	d := env.evaluate(t, principalID, h, address, signature, "/home")
	if d.Action != ActionRedirect {
		t.Fatalf("expected first observation to redirect, got %+v", d)
	}
	if _, err := env.engine.BeginChallenge(context.Background(), h.SessionID); err != nil {
		t.Fatalf("begin challenge: %v", err)
	}
	if _, err := env.engine.VerifyChallenge(context.Background(), h.SessionID, env.notifier.lastCode(t)); err != nil {
		t.Fatalf("verify challenge: %v", err)
	}
}

func (env *testEnv) metric(id MetricID) uint64 {
	return env.engine.MetricsSnapshot().Counters[id]
}

func (env *testEnv) waitAudit(t *testing.T, eventType string) AuditEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-env.audit.Events():
			if ev.EventType == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("audit event %q not observed", eventType)
			return AuditEvent{}
		}
	}
}

func mustIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
