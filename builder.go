package goTrust

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/goTrust/geo"
	"github.com/MrEthical07/goTrust/internal/rate"
	"github.com/MrEthical07/goTrust/internal/stores"
	"github.com/MrEthical07/goTrust/jwt"
	"github.com/MrEthical07/goTrust/session"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrEthical07/goTrust"

// Builder assembles an [Engine]. A Builder can be used once.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	postgres *pgxpool.Pool

	geo          GeoResolver
	contextStore ContextStore
	notifier     Notifier
	auditSink    AuditSink
	logger       *slog.Logger
	tracer       trace.TracerProvider
	now          func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig replaces the whole configuration. The builder keeps its own copy.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions, throttles and, unless
// another backend is chosen, expected contexts. It is required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPostgres stores expected contexts in Postgres instead of Redis. The
// expected_contexts table must exist; see [RunMigrations].
func (b *Builder) WithPostgres(pool *pgxpool.Pool) *Builder {
	b.postgres = pool
	return b
}

// WithGeoResolver overrides the resolver derived from Config.Geo.
func (b *Builder) WithGeoResolver(r GeoResolver) *Builder {
	b.geo = r
	return b
}

// WithContextStore plugs in a custom expected-context backend. It takes
// precedence over WithPostgres.
func (b *Builder) WithContextStore(s ContextStore) *Builder {
	b.contextStore = s
	return b
}

// WithNotifier sets the out-of-band channel for one-time codes. It is required.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink only has an effect when Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithTracerProvider sets the provider for engine spans. The default is the
// global OpenTelemetry provider.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracer = tp
	return b
}

// WithClock overrides the engine clock. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
//
// Build fails when the builder was already used, the configuration is
// invalid, Redis or a notifier is missing, or the JWT keys are unusable.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tp := b.tracer
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	// -------- CONTEXT STORE --------
	contextStore := b.contextStore
	if contextStore == nil {
		if b.postgres != nil {
			contextStore = newStoreAdapter(stores.NewPostgresContextStore(b.postgres), now)
		} else {
			contextStore = newStoreAdapter(stores.NewRedisContextStore(b.redis, cfg.Redis.ContextPrefix), now)
		}
	}

	// -------- GEO --------
	resolver := b.geo
	if resolver == nil {
		if cfg.Geo.DatabasePath != "" {
			resolver = geo.NewMaxMindResolver(cfg.Geo.DatabasePath, cfg.Risk.UnknownLocation)
		} else {
			resolver = geo.Unknown(cfg.Risk.UnknownLocation)
		}
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		return nil, err
	}
	if b.now != nil {
		jm = jm.WithClock(b.now)
	}

	engine := &Engine{
		config:       cloneConfig(cfg),
		sessionStore: session.NewStore(b.redis, cfg.Redis.SessionPrefix),
		contextStore: contextStore,
		geo:          resolver,
		notifier:     b.notifier,
		rateLimiter: rate.New(b.redis, rate.Config{
			KeyPrefix:         cfg.Redis.ThrottlePrefix,
			MaxResends:        cfg.Challenge.MaxResends,
			ResendWindow:      cfg.Challenge.ResendWindow,
			MaxVerifyAttempts: cfg.Challenge.MaxVerifyAttempts,
			VerifyWindow:      cfg.Challenge.VerifyWindow,
		}),
		jwtManager: jm,
		scorer:     NewRiskScorer(cfg.Risk),
		policy:     NewSessionPolicy(cfg.Policy),
		audit:      newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:    NewMetrics(cfg.Metrics),
		logger:     logger,
		tracer:     tp.Tracer(tracerName),
		now:        now,
	}
	engine.initFlowDeps()

	b.built = true

	return engine, nil
}

// RunMigrations applies the embedded Postgres schema for the expected
// context store. It is a no-op when the schema is current.
func RunMigrations(databaseURL string) error {
	return stores.RunMigrations(databaseURL)
}

// NewPostgresPool opens and pings a pgx pool suitable for [Builder.WithPostgres].
var NewPostgresPool = stores.NewPostgresPool
