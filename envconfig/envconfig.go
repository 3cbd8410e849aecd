package envconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goTrust "github.com/MrEthical07/goTrust"
	"github.com/MrEthical07/goTrust/notify"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// Prefix is prepended to every variable name.
const Prefix = "GOTRUST_"

// Settings is the flat environment view of a goTrust deployment.
type Settings struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	Redis    RedisSettings    `envPrefix:"REDIS_"`
	Postgres PostgresSettings `envPrefix:"POSTGRES_"`
	SMTP     SMTPSettings     `envPrefix:"SMTP_"`
	Kafka    KafkaSettings    `envPrefix:"KAFKA_"`
	JWT      JWTSettings      `envPrefix:"JWT_"`

	GeoDatabasePath string `env:"GEO_DATABASE_PATH"`

	HighRiskThreshold   float64       `env:"HIGH_RISK_THRESHOLD" envDefault:"0.7"`
	MediumRiskThreshold float64       `env:"MEDIUM_RISK_THRESHOLD" envDefault:"0.3"`
	HighRiskTTL         time.Duration `env:"HIGH_RISK_TTL" envDefault:"5m"`
	MediumRiskTTL       time.Duration `env:"MEDIUM_RISK_TTL" envDefault:"30m"`
	LowRiskTTL          time.Duration `env:"LOW_RISK_TTL" envDefault:"24h"`
	WarningWindow       time.Duration `env:"WARNING_WINDOW" envDefault:"60s"`
	StickyStepUp        bool          `env:"STICKY_STEP_UP" envDefault:"false"`
	ChallengePath       string        `env:"CHALLENGE_PATH" envDefault:"/reauthenticate"`
	CodeTTL             time.Duration `env:"CODE_TTL" envDefault:"5m"`

	AuditEnabled   bool `env:"AUDIT_ENABLED" envDefault:"false"`
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"false"`
}

// RedisSettings locates the Redis server. An empty Addr lets callers fall
// back to an embedded server for local runs.
type RedisSettings struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// PostgresSettings enables the Postgres context store when URL is set.
type PostgresSettings struct {
	URL      string `env:"URL"`
	MaxConns int32  `env:"MAX_CONNS" envDefault:"10"`
}

// SMTPSettings feeds [notify.SMTPConfig]. An empty Host disables mail.
type SMTPSettings struct {
	Host       string        `env:"HOST"`
	Port       int           `env:"PORT" envDefault:"587"`
	Username   string        `env:"USERNAME"`
	Password   string        `env:"PASSWORD"`
	From       string        `env:"FROM"`
	RequireTLS bool          `env:"REQUIRE_TLS" envDefault:"true"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// KafkaSettings enables the Kafka audit sink when Brokers is set.
type KafkaSettings struct {
	Brokers string `env:"BROKERS"`
	Topic   string `env:"TOPIC" envDefault:"gotrust.audit"`
}

// JWTSettings selects the access-token keys. Key variables ending in _FILE
// hold a path whose contents are loaded.
type JWTSettings struct {
	SigningMethod  string        `env:"SIGNING_METHOD" envDefault:"ed25519"`
	PrivateKeyFile string        `env:"PRIVATE_KEY_FILE,file"`
	PublicKeyFile  string        `env:"PUBLIC_KEY_FILE,file"`
	Secret         string        `env:"SECRET"`
	Issuer         string        `env:"ISSUER" envDefault:"gotrust"`
	Audience       string        `env:"AUDIENCE"`
	AccessTTL      time.Duration `env:"ACCESS_TTL" envDefault:"24h"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Settings, error) {
	_ = godotenv.Load()
	return parse(env.Options{Prefix: Prefix})
}

// LoadFiles is like [Load] but reads the named dotenv files, which must exist.
func LoadFiles(files ...string) (*Settings, error) {
	if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}
	return parse(env.Options{Prefix: Prefix})
}

// FromMap parses settings from vars instead of the process environment.
func FromMap(vars map[string]string) (*Settings, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (*Settings, error) {
	s := &Settings{}
	if err := env.ParseWithOptions(s, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the settings that [goTrust.Config.Validate] cannot see.
func (s *Settings) Validate() error {
	switch strings.ToLower(s.JWT.SigningMethod) {
	case "ed25519":
		if s.JWT.PrivateKeyFile == "" || s.JWT.PublicKeyFile == "" {
			return errors.New("GOTRUST_JWT_PRIVATE_KEY_FILE and GOTRUST_JWT_PUBLIC_KEY_FILE are required for ed25519")
		}
	case "hs256":
		if len(s.JWT.Secret) < 32 {
			return fmt.Errorf("GOTRUST_JWT_SECRET is too short (%d chars); minimum 32 characters required", len(s.JWT.Secret))
		}
	default:
		return fmt.Errorf("unsupported GOTRUST_JWT_SIGNING_METHOD %q", s.JWT.SigningMethod)
	}
	if s.SMTP.Host != "" && s.SMTP.From == "" {
		return errors.New("GOTRUST_SMTP_FROM is required when GOTRUST_SMTP_HOST is set")
	}
	if _, err := parseLevel(s.LogLevel); err != nil {
		return err
	}
	return nil
}

// TrustConfig overlays the settings on [goTrust.DefaultConfig] and validates
// the result.
func (s *Settings) TrustConfig() (goTrust.Config, error) {
	cfg := goTrust.DefaultConfig()

	cfg.Policy.HighRiskThreshold = s.HighRiskThreshold
	cfg.Policy.MediumRiskThreshold = s.MediumRiskThreshold
	cfg.Policy.HighRiskTTL = s.HighRiskTTL
	cfg.Policy.MediumRiskTTL = s.MediumRiskTTL
	cfg.Policy.LowRiskTTL = s.LowRiskTTL
	cfg.Session.WarningWindow = s.WarningWindow
	cfg.Session.StickyStepUp = s.StickyStepUp
	cfg.Challenge.ChallengePath = s.ChallengePath
	cfg.Challenge.CodeTTL = s.CodeTTL
	cfg.Geo.DatabasePath = s.GeoDatabasePath
	cfg.Audit.Enabled = s.AuditEnabled
	cfg.Metrics.Enabled = s.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = s.MetricsEnabled

	cfg.JWT.SigningMethod = strings.ToLower(s.JWT.SigningMethod)
	cfg.JWT.Issuer = s.JWT.Issuer
	cfg.JWT.Audience = s.JWT.Audience
	cfg.JWT.AccessTTL = s.JWT.AccessTTL
	if cfg.JWT.SigningMethod == "hs256" {
		cfg.JWT.PrivateKey = []byte(s.JWT.Secret)
	} else {
		cfg.JWT.PrivateKey = []byte(s.JWT.PrivateKeyFile)
		cfg.JWT.PublicKey = []byte(s.JWT.PublicKeyFile)
	}

	if err := cfg.Validate(); err != nil {
		return goTrust.Config{}, fmt.Errorf("invalid trust config: %w", err)
	}
	return cfg, nil
}

// RedisOptions returns client options, or nil when no address is set.
func (s *Settings) RedisOptions() *redis.Options {
	if s.Redis.Addr == "" {
		return nil
	}
	return &redis.Options{
		Addr:     s.Redis.Addr,
		Password: s.Redis.Password,
		DB:       s.Redis.DB,
	}
}

// SMTPConfig returns the notifier configuration. ok is false when mail is
// not configured.
func (s *Settings) SMTPConfig() (cfg notify.SMTPConfig, ok bool) {
	if s.SMTP.Host == "" {
		return notify.SMTPConfig{}, false
	}
	return notify.SMTPConfig{
		Host:       s.SMTP.Host,
		Port:       s.SMTP.Port,
		Username:   s.SMTP.Username,
		Password:   s.SMTP.Password,
		From:       s.SMTP.From,
		RequireTLS: s.SMTP.RequireTLS,
		Timeout:    s.SMTP.Timeout,
	}, true
}

// SlogLevel returns the configured log level.
func (s *Settings) SlogLevel() slog.Level {
	lvl, _ := parseLevel(s.LogLevel)
	return lvl
}

func parseLevel(v string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid GOTRUST_LOG_LEVEL %q", v)
	}
	return lvl, nil
}
