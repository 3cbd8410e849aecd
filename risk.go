package goTrust

import "math"

// Risk factor names reported by [RiskScorer.Explain].
const (
	FactorFirstObservation  = "first_observation"
	FactorAddressMismatch   = "address_mismatch"
	FactorSignatureMismatch = "signature_mismatch"
	FactorLocationMismatch  = "location_mismatch"
)

// RiskScorer computes a deterministic risk score in [0, MaxScore] from an
// observation and the principal's stored context. It is safe for concurrent use.
type RiskScorer struct {
	cfg RiskConfig
}

// NewRiskScorer returns a scorer using the given penalties.
func NewRiskScorer(cfg RiskConfig) RiskScorer {
	return RiskScorer{cfg: cfg}
}

// Score returns the risk of obs given stored. A nil stored context is a first
// observation.
func (r RiskScorer) Score(obs Observation, stored *ExpectedContext) float64 {
	score, _ := r.Explain(obs, stored)
	return score
}

// Explain returns the score together with the names of the factors that
// contributed to it.
func (r RiskScorer) Explain(obs Observation, stored *ExpectedContext) (float64, []string) {
	if stored == nil {
		return r.cfg.FirstObservationScore, []string{FactorFirstObservation}
	}

	var (
		score   float64
		factors []string
	)
	if obs.Address != stored.Address {
		score += r.cfg.AddressPenalty
		factors = append(factors, FactorAddressMismatch)
	}
	if obs.ClientSignature != stored.ClientSignature {
		score += r.cfg.SignaturePenalty
		factors = append(factors, FactorSignatureMismatch)
	}
	if obs.Location != r.cfg.UnknownLocation && obs.Location != stored.Location {
		score += r.cfg.LocationPenalty
		factors = append(factors, FactorLocationMismatch)
	}

	// Four decimals keeps sums such as 0.2+0.4 on the exact tier boundaries.
	score = math.Round(score*1e4) / 1e4
	return math.Min(score, r.cfg.MaxScore), factors
}
