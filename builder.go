package authgate

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kwarden/authgate/credential"
	"github.com/kwarden/authgate/internal/rate"
	"github.com/kwarden/authgate/ledger"
	"github.com/kwarden/authgate/session"
	"github.com/kwarden/authgate/token"
)

// Builder assembles a [Gateway]. Configure it during initialization; a
// builder is single-use and not safe for concurrent mutation.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	source CredentialSource
	sink   AuditSink
	now    func() time.Time

	built bool
}

// New returns a builder seeded with default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions, the revocation ledger,
// and rate limiting.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialSource sets the stored-credential lookup used by Login.
func (b *Builder) WithCredentialSource(src CredentialSource) *Builder {
	b.source = src
	return b
}

// WithAuditSink sets the destination for audit events. Ignored unless
// Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithClock overrides the time source for every component. Used in tests to
// drive expiry deterministically.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, constructs every component, and returns
// the ready gateway.
func (b *Builder) Build() (*Gateway, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.source == nil {
		return nil, errors.New("credential source required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	hasher, err := credential.NewHasher(credential.HasherConfig{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	verifier, err := credential.NewVerifier(hasher, b.source)
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
		KeyID:         cfg.Token.KeyID,
		VerifyKeys:    cfg.Token.VerifyKeys,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore(b.redis, session.Config{
		Prefix:              cfg.Session.RedisPrefix,
		IdleTimeout:         cfg.Session.IdleTimeout,
		MaxAbsoluteLifetime: cfg.Session.AbsoluteLifetime,
		Now:                 now,
	})

	revocations := ledger.New(b.redis, ledger.Config{
		Prefix: cfg.Session.RedisPrefix,
		Now:    now,
	})

	limiter := rate.New(b.redis, rate.Config{
		EnableIPThrottle:        cfg.Security.EnableIPThrottle,
		EnableRefreshThrottle:   cfg.Security.EnableRefreshThrottle,
		MaxLoginAttempts:        cfg.Security.MaxLoginAttempts,
		LoginCooldownDuration:   cfg.Security.LoginCooldownDuration,
		MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
		RefreshCooldownDuration: cfg.Security.RefreshCooldownDuration,
	})

	g := &Gateway{
		config:      cfg,
		verifier:    verifier,
		hasher:      hasher,
		sessions:    sessions,
		tokens:      tokens,
		revocations: revocations,
		limiter:     limiter,
		audit:       newAuditDispatcher(cfg.Audit, b.sink),
		metrics:     NewMetrics(cfg.Metrics),
		now:         now,
	}

	b.built = true

	return g, nil
}
