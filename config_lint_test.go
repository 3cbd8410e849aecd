package goTrust

import (
	"testing"
	"time"
)

func TestLint_DefaultConfigChallengesFirstObservation(t *testing.T) {
	cfg := trustTestConfig(t)
	codes := cfg.Lint().Codes()

	unwanted := []string{
		"first_observation_not_challenged",
		"step_up_unreachable",
		"code_ttl_long",
		"verify_throttle_disabled",
		"resend_throttle_disabled",
		"warning_window_large",
		"audit_disabled",
		"hs256_signing",
		"leeway_large",
	}
	for _, code := range unwanted {
		if containsCode(codes, code) {
			t.Errorf("default config should not produce warning %q", code)
		}
	}
}

func TestLint_AuditDisabledByDefault(t *testing.T) {
	cfg := defaultConfig()
	if !containsCode(cfg.Lint().Codes(), "audit_disabled") {
		t.Error("expected audit_disabled warning for bare defaults")
	}
}

func TestLint_FirstObservationBelowThreshold(t *testing.T) {
	cfg := defaultConfig()
	cfg.Risk.FirstObservationScore = 0.7
	if !containsCode(cfg.Lint().Codes(), "first_observation_not_challenged") {
		t.Error("expected first_observation_not_challenged warning at equal threshold")
	}
}

func TestLint_StepUpUnreachable(t *testing.T) {
	cfg := defaultConfig()
	cfg.Risk.AddressPenalty = 0.1
	cfg.Risk.SignaturePenalty = 0.1
	cfg.Risk.LocationPenalty = 0.1
	if !containsCode(cfg.Lint().Codes(), "step_up_unreachable") {
		t.Error("expected step_up_unreachable warning")
	}
}

func TestLint_LongCodeTTL(t *testing.T) {
	cfg := defaultConfig()
	cfg.Challenge.CodeTTL = 15 * time.Minute
	if !containsCode(cfg.Lint().Codes(), "code_ttl_long") {
		t.Error("expected code_ttl_long warning")
	}
}

func TestLint_ThrottlesDisabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.Challenge.MaxVerifyAttempts = 0
	cfg.Challenge.MaxResends = 0
	codes := cfg.Lint().Codes()
	if !containsCode(codes, "verify_throttle_disabled") {
		t.Error("expected verify_throttle_disabled warning")
	}
	if !containsCode(codes, "resend_throttle_disabled") {
		t.Error("expected resend_throttle_disabled warning")
	}
}

func TestLint_WarningWindowCoversHighRiskTTL(t *testing.T) {
	cfg := defaultConfig()
	cfg.Session.WarningWindow = cfg.Policy.HighRiskTTL
	if !containsCode(cfg.Lint().Codes(), "warning_window_large") {
		t.Error("expected warning_window_large warning")
	}
}

func TestLint_HS256(t *testing.T) {
	cfg := defaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	if !containsCode(cfg.Lint().Codes(), "hs256_signing") {
		t.Error("expected hs256_signing warning")
	}
}

func TestLint_LargeLeeway(t *testing.T) {
	cfg := defaultConfig()
	cfg.JWT.Leeway = 90 * time.Second
	if !containsCode(cfg.Lint().Codes(), "leeway_large") {
		t.Error("expected leeway_large warning")
	}
}

func TestLint_WarningsCarryMessages(t *testing.T) {
	cfg := defaultConfig()
	cfg.Challenge.MaxResends = 0
	for _, w := range cfg.Lint() {
		if w.Message == "" {
			t.Errorf("warning %q has empty message", w.Code)
		}
	}
}

// helpers

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
