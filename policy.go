package goTrust

import "time"

// RiskTier names the policy band a score fell into.
type RiskTier uint8

const (
	// RiskTierLow is an exported constant or variable used by the trust engine.
	RiskTierLow RiskTier = iota
	// RiskTierMedium is an exported constant or variable used by the trust engine.
	RiskTierMedium
	// RiskTierHigh is an exported constant or variable used by the trust engine.
	RiskTierHigh
)

func (t RiskTier) String() string {
	switch t {
	case RiskTierHigh:
		return "high"
	case RiskTierMedium:
		return "medium"
	default:
		return "low"
	}
}

// PolicyDecision is the session lifetime and step-up requirement for a score.
type PolicyDecision struct {
	TTL            time.Duration
	RequiresStepUp bool
	Tier           RiskTier
}

// SessionPolicy maps risk scores to [PolicyDecision] values. Tiers are
// checked from high to low and thresholds are exclusive.
type SessionPolicy struct {
	cfg PolicyConfig
}

// NewSessionPolicy returns a policy using the given thresholds and TTLs.
func NewSessionPolicy(cfg PolicyConfig) SessionPolicy {
	return SessionPolicy{cfg: cfg}
}

// Decide returns the policy for score.
func (p SessionPolicy) Decide(score float64) PolicyDecision {
	switch {
	case score > p.cfg.HighRiskThreshold:
		return PolicyDecision{TTL: p.cfg.HighRiskTTL, RequiresStepUp: true, Tier: RiskTierHigh}
	case score > p.cfg.MediumRiskThreshold:
		return PolicyDecision{TTL: p.cfg.MediumRiskTTL, Tier: RiskTierMedium}
	default:
		return PolicyDecision{TTL: p.cfg.LowRiskTTL, Tier: RiskTierLow}
	}
}
