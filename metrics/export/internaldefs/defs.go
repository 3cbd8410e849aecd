package internaldefs

import (
	goTrust "github.com/MrEthical07/goTrust"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goTrust.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   goTrust.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the trust engine.
var CounterDefs = []CounterDef{
	{ID: goTrust.MetricEvaluateAllowed, Name: "gotrust_evaluate_allowed_total", Help: "Authenticated requests allowed through."},
	{ID: goTrust.MetricEvaluateRedirected, Name: "gotrust_evaluate_redirected_total", Help: "Requests redirected to the step-up challenge."},
	{ID: goTrust.MetricEvaluatePassThrough, Name: "gotrust_evaluate_pass_through_total", Help: "Unauthenticated requests passed through."},
	{ID: goTrust.MetricEvaluateFailure, Name: "gotrust_evaluate_failure_total", Help: "Evaluate calls that failed."},
	{ID: goTrust.MetricFirstObservation, Name: "gotrust_first_observation_total", Help: "Requests from principals without a stored context."},
	{ID: goTrust.MetricContextUpdated, Name: "gotrust_context_updated_total", Help: "Expected-context writes."},
	{ID: goTrust.MetricGeoLookupDegraded, Name: "gotrust_geo_lookup_degraded_total", Help: "Location lookups that resolved to unknown."},
	{ID: goTrust.MetricSessionWarning, Name: "gotrust_session_warning_total", Help: "Decisions carrying the session expiry warning."},
	{ID: goTrust.MetricRiskTierLow, Name: "gotrust_risk_tier_low_total", Help: "Requests scored into the low-risk tier."},
	{ID: goTrust.MetricRiskTierMedium, Name: "gotrust_risk_tier_medium_total", Help: "Requests scored into the medium-risk tier."},
	{ID: goTrust.MetricRiskTierHigh, Name: "gotrust_risk_tier_high_total", Help: "Requests scored into the high-risk tier."},
	{ID: goTrust.MetricChallengeIssued, Name: "gotrust_challenge_issued_total", Help: "One-time codes issued."},
	{ID: goTrust.MetricChallengeReused, Name: "gotrust_challenge_reused_total", Help: "Challenge entries that reused a pending code."},
	{ID: goTrust.MetricChallengeResent, Name: "gotrust_challenge_resent_total", Help: "Explicit code resends."},
	{ID: goTrust.MetricChallengeVerified, Name: "gotrust_challenge_verified_total", Help: "Successful step-up verifications."},
	{ID: goTrust.MetricChallengeMismatch, Name: "gotrust_challenge_mismatch_total", Help: "Submitted codes that did not match."},
	{ID: goTrust.MetricChallengeExpired, Name: "gotrust_challenge_expired_total", Help: "Submissions against an expired code."},
	{ID: goTrust.MetricChallengeRateLimited, Name: "gotrust_challenge_rate_limited_total", Help: "Resend or verify attempts denied by throttling."},
	{ID: goTrust.MetricNotificationFailed, Name: "gotrust_notification_failed_total", Help: "Code deliveries that failed."},
	{ID: goTrust.MetricSessionCreated, Name: "gotrust_session_created_total", Help: "Created sessions."},
	{ID: goTrust.MetricLogout, Name: "gotrust_logout_total", Help: "Logout operations."},
}

// HistogramDefs is an exported constant or variable used by the trust engine.
var HistogramDefs = []HistogramDef{
	{ID: goTrust.MetricEvaluateLatency, Name: "gotrust_evaluate_latency_seconds", Help: "Evaluate latency histogram."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine's
// last bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix is an exported constant or variable used by the trust engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// AuditDroppedName is the counter exported for dropped audit events.
const AuditDroppedName = "gotrust_audit_dropped_total"

// NormalizeBuckets copies raw into a fixed eight-bucket array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
