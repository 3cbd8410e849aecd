package goTrust

import (
	"context"
	"strings"
	"testing"
)

func TestConfigValidateEd25519RequiresBothKeys(t *testing.T) {
	cfg := trustTestConfig(t)
	cfg.JWT.PublicKey = nil

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "PublicKey") {
		t.Fatalf("expected missing public key rejection, got %v", err)
	}

	cfg = trustTestConfig(t)
	cfg.JWT.PrivateKey = nil
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "PrivateKey") {
		t.Fatalf("expected missing private key rejection, got %v", err)
	}
}

func TestConfigValidateHS256RequiresSecret(t *testing.T) {
	cfg := trustTestConfig(t)
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = nil
	cfg.JWT.PublicKey = nil

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "hs256 requires PrivateKey") {
		t.Fatalf("expected hs256 secret rejection, got %v", err)
	}

	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected hs256 with secret to validate, got %v", err)
	}
}

func TestConfigValidateRedisPrefixesMustDiffer(t *testing.T) {
	cfg := trustTestConfig(t)
	cfg.Redis.ContextPrefix = cfg.Redis.SessionPrefix

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Fatalf("expected prefix collision rejection, got %v", err)
	}

	cfg = trustTestConfig(t)
	cfg.Redis.ThrottlePrefix = cfg.Redis.ContextPrefix
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Fatalf("expected throttle prefix collision rejection, got %v", err)
	}

	for _, mutate := range []func(*Config){
		func(c *Config) { c.Redis.SessionPrefix = "" },
		func(c *Config) { c.Redis.ThrottlePrefix = "" },
	} {
		cfg = trustTestConfig(t)
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected empty prefix rejection")
		}
	}
}

func TestThrottleCountersUseConfiguredPrefix(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Redis.ThrottlePrefix = "tenant7-tr" })
	h := env.start(t, "alice")
	env.evaluate(t, "alice", h, berlinA, uaDesk, "/home")

	if _, err := env.engine.BeginChallenge(context.Background(), h.SessionID); err != nil {
		t.Fatalf("begin challenge: %v", err)
	}
	if _, err := env.engine.ResendChallenge(context.Background(), h.SessionID); err != nil {
		t.Fatalf("resend challenge: %v", err)
	}
	if !env.redis.Exists("tenant7-tr:r:" + h.SessionID) {
		t.Fatalf("expected resend counter under configured prefix, keys %v", env.redis.Keys())
	}
	if env.redis.Exists("tr:r:" + h.SessionID) {
		t.Fatal("default prefix must not be used when one is configured")
	}
}

func TestConfigValidateTTLsMustShrinkWithRisk(t *testing.T) {
	cfg := trustTestConfig(t)
	cfg.Policy.MediumRiskTTL = cfg.Policy.LowRiskTTL * 2

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "must not grow with risk") {
		t.Fatalf("expected ttl ordering rejection, got %v", err)
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := trustTestConfig(t)
	cfg.Policy.HighRiskThreshold = 2

	_, err := New().
		WithConfig(cfg).
		WithRedis(newBenchRedis(t)).
		WithNotifier(&captureNotifier{}).
		Build()
	if err == nil || !strings.Contains(err.Error(), "thresholds") {
		t.Fatalf("expected build to surface validation error, got %v", err)
	}
}
