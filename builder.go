package authgate

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/hatchpanel/authgate/credential"
	"github.com/hatchpanel/authgate/identity"
	"github.com/hatchpanel/authgate/internal/audit"
	"github.com/hatchpanel/authgate/internal/rate"
	"github.com/hatchpanel/authgate/session"
)

// Builder assembles an [Engine]. Configure it during initialization and call
// Build exactly once; the builder is not safe for concurrent use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users    UserStore
	verifier SecondFactorVerifier
	sink     AuditSink

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration. Call before other With*
// methods that touch config fields.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions, OAuth state, and
// second-factor rate limiting.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSecret sets the credential signing secret.
func (b *Builder) WithSecret(secret []byte) *Builder {
	b.config.Credential.Secret = secret
	return b
}

// WithUserStore sets the authoritative user record backend.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithSecondFactorVerifier sets the OTP and backup-code verifier. Required
// only when two-factor support is enabled.
func (b *Builder) WithSecondFactorVerifier(v SecondFactorVerifier) *Builder {
	b.verifier = v
	return b
}

// WithAuditSink enables audit dispatch to the given sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the gate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires the component graph, and returns
// a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Credential.CookieTTL <= 0 {
		cfg.Credential.CookieTTL = cfg.Session.TTL
	}

	codec, err := credential.NewCodec(credential.Config{
		Secret: cfg.Credential.Secret,
		Issuer: cfg.Credential.Issuer,
		Leeway: cfg.Credential.Leeway,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cfg,
		codec:      codec,
		cache:      identity.NewCache(),
		users:      b.users,
		verifier:   b.verifier,
		metrics:    NewMetrics(cfg.Metrics),
		stateStore: newOAuthStateStore(b.redis),
	}

	engine.sessions = session.NewStore(
		b.redis,
		cfg.Session.RedisPrefix,
		cfg.Session.ExpiredGrace,
	)

	if cfg.TwoFactor.Enabled {
		engine.limiter = rate.New(b.redis, rate.Config{
			MaxSecondFactorAttempts:    cfg.TwoFactor.MaxAttempts,
			SecondFactorAttemptsWindow: cfg.TwoFactor.AttemptsWindow,
		})
	}

	if cfg.Audit.Enabled {
		engine.dispatcher = audit.NewDispatcher(audit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.sink)
	}

	b.built = true
	return engine, nil
}
