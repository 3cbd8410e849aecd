//go:build integration
// +build integration

package test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"regexp"
	"sync"
	"testing"
	"time"

	goTrust "github.com/MrEthical07/goTrust"
	"github.com/MrEthical07/goTrust/geo"
	"github.com/MrEthical07/goTrust/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newIntegrationStore(t *testing.T) (*session.Store, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := session.NewStore(rdb, "ts")

	return store, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func makeSession(principalID, sessionID string) *session.Session {
	now := time.Now()

	return &session.Session{
		SessionID:   sessionID,
		PrincipalID: principalID,
		Contact:     principalID + "@example.com",
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(time.Hour).Unix(),
		TTLSeconds:  3600,
	}
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

// inbox is a Notifier that keeps every message it is asked to send.
type inbox struct {
	mu    sync.Mutex
	codes []string
}

func (n *inbox) Send(_ context.Context, _, _, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes = append(n.codes, codePattern.FindString(body))
	return nil
}

func (n *inbox) last(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.codes) == 0 || n.codes[len(n.codes)-1] == "" {
		t.Fatal("no code delivered")
	}
	return n.codes[len(n.codes)-1]
}

func newIntegrationEngine(t *testing.T, rdb redis.UniversalClient) (*goTrust.Engine, *inbox) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cfg := goTrust.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub

	resolver, err := geo.NewStaticResolver(map[string]string{
		"198.51.100.0/24": "Berlin",
		"203.0.113.0/24":  "Sydney",
	}, cfg.Risk.UnknownLocation)
	if err != nil {
		t.Fatalf("static resolver: %v", err)
	}

	box := &inbox{}
	engine, err := goTrust.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithNotifier(box).
		WithGeoResolver(resolver).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, box
}
