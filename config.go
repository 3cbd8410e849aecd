package goTrust

import (
	"errors"
	"strings"
	"time"
)

// Config defines a public type used by goTrust APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Risk      RiskConfig
	Policy    PolicyConfig
	Challenge ChallengeConfig
	Session   SessionConfig
	JWT       JWTConfig
	Geo       GeoConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Redis     RedisConfig
}

/*
====================================
RISK CONFIG
====================================
*/

// RiskConfig holds the additive penalties used by [RiskScorer].
type RiskConfig struct {
	FirstObservationScore float64
	AddressPenalty        float64
	SignaturePenalty      float64
	LocationPenalty       float64
	MaxScore              float64
	// UnknownLocation is the label a degraded lookup resolves to. A request
	// from an unknown location never incurs the location penalty.
	UnknownLocation string
}

/*
====================================
POLICY CONFIG
====================================
*/

// PolicyConfig maps risk scores to session lifetimes. Thresholds are exclusive:
// a score equal to a threshold falls into the lower tier.
type PolicyConfig struct {
	HighRiskThreshold   float64
	MediumRiskThreshold float64
	HighRiskTTL         time.Duration
	MediumRiskTTL       time.Duration
	LowRiskTTL          time.Duration
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeConfig controls the emailed one-time passcode used for step-up.
type ChallengeConfig struct {
	Digits              int
	CodeTTL             time.Duration
	ChallengePath       string
	DefaultRedirectPath string
	MaxResends          int
	ResendWindow        time.Duration
	MaxVerifyAttempts   int
	VerifyWindow        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by goTrust APIs.
type SessionConfig struct {
	InitialTTL    time.Duration
	WarningWindow time.Duration
	// StickyStepUp keeps redirecting a session that was sent to the challenge
	// until it verifies, even when later requests score below the step-up
	// threshold. Off by default: each request follows its own policy decision.
	StickyStepUp bool
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by goTrust APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

// GeoConfig points the default resolver at a MaxMind City database. An empty
// path resolves every address to the unknown location.
type GeoConfig struct {
	DatabasePath string
}

// AuditConfig defines a public type used by goTrust APIs.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by goTrust APIs.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// RedisConfig sets the key namespaces used in Redis.
type RedisConfig struct {
	SessionPrefix  string
	ContextPrefix  string
	ThrottlePrefix string
}

// DefaultConfig returns the default configuration. JWT keys must still be set.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Risk: RiskConfig{
			FirstObservationScore: 0.9,
			AddressPenalty:        0.3,
			SignaturePenalty:      0.2,
			LocationPenalty:       0.4,
			MaxScore:              1.0,
			UnknownLocation:       "Unknown",
		},
		Policy: PolicyConfig{
			HighRiskThreshold:   0.7,
			MediumRiskThreshold: 0.3,
			HighRiskTTL:         300 * time.Second,
			MediumRiskTTL:       1800 * time.Second,
			LowRiskTTL:          86400 * time.Second,
		},
		Challenge: ChallengeConfig{
			Digits:              6,
			CodeTTL:             5 * time.Minute,
			ChallengePath:       "/reauthenticate",
			DefaultRedirectPath: "/",
			MaxResends:          5,
			ResendWindow:        15 * time.Minute,
			MaxVerifyAttempts:   5,
			VerifyWindow:        15 * time.Minute,
		},
		Session: SessionConfig{
			InitialTTL:    86400 * time.Second,
			WarningWindow: 60 * time.Second,
		},
		JWT: JWTConfig{
			AccessTTL:     24 * time.Hour,
			SigningMethod: "ed25519",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Redis: RedisConfig{
			SessionPrefix:  "ts",
			ContextPrefix:  "tc",
			ThrottlePrefix: "tr",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func validFraction(v float64) bool {
	return v >= 0 && v <= 1
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	// Risk
	if !validFraction(c.Risk.AddressPenalty) ||
		!validFraction(c.Risk.SignaturePenalty) ||
		!validFraction(c.Risk.LocationPenalty) {
		return errors.New("Risk penalties must be within [0, 1]")
	}
	if c.Risk.MaxScore <= 0 || c.Risk.MaxScore > 1 {
		return errors.New("Risk MaxScore must be within (0, 1]")
	}
	if c.Risk.FirstObservationScore < 0 || c.Risk.FirstObservationScore > c.Risk.MaxScore {
		return errors.New("Risk FirstObservationScore must be within [0, MaxScore]")
	}
	if strings.TrimSpace(c.Risk.UnknownLocation) == "" {
		return errors.New("Risk UnknownLocation must not be empty")
	}

	// Policy
	if !validFraction(c.Policy.MediumRiskThreshold) || !validFraction(c.Policy.HighRiskThreshold) {
		return errors.New("Policy thresholds must be within [0, 1]")
	}
	if c.Policy.MediumRiskThreshold >= c.Policy.HighRiskThreshold {
		return errors.New("Policy MediumRiskThreshold must be < HighRiskThreshold")
	}
	if c.Policy.HighRiskTTL <= 0 || c.Policy.MediumRiskTTL <= 0 || c.Policy.LowRiskTTL <= 0 {
		return errors.New("Policy TTLs must be > 0")
	}
	if c.Policy.HighRiskTTL > c.Policy.MediumRiskTTL || c.Policy.MediumRiskTTL > c.Policy.LowRiskTTL {
		return errors.New("Policy TTLs must not grow with risk")
	}

	// Challenge
	if c.Challenge.Digits < 6 || c.Challenge.Digits > 10 {
		return errors.New("Challenge Digits must be between 6 and 10")
	}
	if c.Challenge.CodeTTL <= 0 {
		return errors.New("Challenge CodeTTL must be > 0")
	}
	if !strings.HasPrefix(c.Challenge.ChallengePath, "/") {
		return errors.New("Challenge ChallengePath must be an absolute path")
	}
	if !strings.HasPrefix(c.Challenge.DefaultRedirectPath, "/") || strings.HasPrefix(c.Challenge.DefaultRedirectPath, "//") {
		return errors.New("Challenge DefaultRedirectPath must be an absolute path")
	}
	if c.Challenge.DefaultRedirectPath == c.Challenge.ChallengePath {
		return errors.New("Challenge DefaultRedirectPath must differ from ChallengePath")
	}
	if c.Challenge.MaxResends < 0 || c.Challenge.MaxVerifyAttempts < 0 {
		return errors.New("Challenge throttle limits must be >= 0")
	}
	if c.Challenge.MaxResends > 0 && c.Challenge.ResendWindow <= 0 {
		return errors.New("Challenge ResendWindow must be > 0 when MaxResends is set")
	}
	if c.Challenge.MaxVerifyAttempts > 0 && c.Challenge.VerifyWindow <= 0 {
		return errors.New("Challenge VerifyWindow must be > 0 when MaxVerifyAttempts is set")
	}

	// Session
	if c.Session.InitialTTL <= 0 {
		return errors.New("Session InitialTTL must be > 0")
	}
	if c.Session.WarningWindow < 0 {
		return errors.New("Session WarningWindow must be >= 0")
	}

	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	// Redis
	if c.Redis.SessionPrefix == "" || c.Redis.ContextPrefix == "" || c.Redis.ThrottlePrefix == "" {
		return errors.New("Redis prefixes must not be empty")
	}
	if c.Redis.SessionPrefix == c.Redis.ContextPrefix ||
		c.Redis.SessionPrefix == c.Redis.ThrottlePrefix ||
		c.Redis.ContextPrefix == c.Redis.ThrottlePrefix {
		return errors.New("Redis SessionPrefix, ContextPrefix and ThrottlePrefix must differ")
	}

	return nil
}
