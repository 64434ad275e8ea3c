package webgate

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/webgatekit/webgate/authz"
	"github.com/webgatekit/webgate/internal/audit"
	"github.com/webgatekit/webgate/internal/rate"
	"github.com/webgatekit/webgate/password"
	"github.com/webgatekit/webgate/rememberme"
	"github.com/webgatekit/webgate/session"
)

// Builder assembles an [Engine]. Configure it with the WithX methods and
// call Build once; a Builder is not safe for concurrent use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	rules     []authz.Rule
	directory Directory
	auditSink AuditSink

	built bool
}

// New returns a [Builder] loaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions, tokens, and throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRules sets the ordered authorization rule list.
func (b *Builder) WithRules(rules []authz.Rule) *Builder {
	b.rules = rules
	return b
}

// WithDirectory sets the principal directory.
func (b *Builder) WithDirectory(d Directory) *Builder {
	b.directory = d
	return b
}

// WithAuditSink sets the sink receiving audit events. Events are only
// emitted when Audit.Enabled is set in the configuration.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles metric recording.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles resolve latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and rule list and assembles the
// [Engine]. Rule-ordering mistakes fail here rather than silently
// shadowing a rule at runtime.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(b.rules) == 0 {
		return nil, errors.New("authorization rules must be provided")
	}
	if err := authz.Lint(b.rules); err != nil {
		return nil, err
	}
	if b.directory == nil {
		return nil, errors.New("directory required")
	}

	hasher, err := password.NewHasher(password.Params{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	// Hashed once up front so unknown-username logins burn the same
	// verification cost as real ones.
	dummyHash, err := hasher.Hash("webgate-timing-equalizer")
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		evaluator: authz.NewEvaluator(b.rules),
		directory: b.directory,
		hasher:    hasher,
		dummyHash: dummyHash,
		sessions: session.NewRegistry(
			b.redis,
			cfg.Session.RedisPrefix,
			cfg.Session.IdleTimeout,
			cfg.Session.AbsoluteLifetime,
			cfg.Session.MaxConcurrent,
			cfg.Session.Policy,
		),
		metrics: NewMetrics(cfg.Metrics),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
	}

	if cfg.RememberMe.Enabled {
		engine.rememberMe = rememberme.NewService(
			b.redis,
			cfg.Session.RedisPrefix,
			cfg.RememberMe.Validity,
		)
	}
	if cfg.RequestCache.Enabled {
		engine.requestCache = session.NewRequestCache(
			b.redis,
			cfg.Session.RedisPrefix,
			cfg.RequestCache.TTL,
		)
	}
	if cfg.RateLimit.Enabled {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle: cfg.RateLimit.EnableIPThrottle,
			MaxAttempts:      cfg.RateLimit.MaxAttempts,
			Cooldown:         cfg.RateLimit.Cooldown,
		})
	}

	b.built = true

	return engine, nil
}
