package goTrust

import "time"

// LintWarning is a non-fatal configuration concern.
type LintWarning struct {
	Code    string
	Message string
}

// LintResult is the list of warnings produced by [Config.Lint].
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that are valid but probably unintended. It does not
// replace [Config.Validate].
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if c.Risk.FirstObservationScore <= c.Policy.HighRiskThreshold {
		add("first_observation_not_challenged", "first observation of a principal does not trigger step-up")
	}
	if c.Risk.AddressPenalty+c.Risk.SignaturePenalty+c.Risk.LocationPenalty <= c.Policy.HighRiskThreshold {
		add("step_up_unreachable", "no combination of context changes can exceed the high-risk threshold")
	}
	if c.Challenge.CodeTTL > 10*time.Minute {
		add("code_ttl_long", "one-time codes stay valid for more than 10 minutes")
	}
	if c.Challenge.MaxVerifyAttempts == 0 {
		add("verify_throttle_disabled", "failed code verifications are not throttled")
	}
	if c.Challenge.MaxResends == 0 {
		add("resend_throttle_disabled", "code resends are not throttled")
	}
	if c.Session.WarningWindow >= c.Policy.HighRiskTTL {
		add("warning_window_large", "warning window covers the whole high-risk session lifetime")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", "step-up decisions are not audited")
	}
	if c.JWT.SigningMethod == "hs256" {
		add("hs256_signing", "symmetric signing shares the verification secret with every verifier")
	}
	if c.JWT.Leeway > 60*time.Second {
		add("leeway_large", "JWT leeway above 60s")
	}

	return ws
}
