package authgate

import (
	"errors"
	"time"
)

// Config is the complete gateway configuration. Zero values are filled from
// defaultConfig by the builder; Validate runs once at build time.
type Config struct {
	Token    TokenConfig
	Session  SessionConfig
	Password PasswordConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig

	// ProductionMode tightens validation: ed25519 signing only, throttles
	// on, short access TTLs.
	ProductionMode bool
}

// TokenConfig configures the token strategy.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// SessionConfig configures the session strategy.
type SessionConfig struct {
	RedisPrefix      string
	IdleTimeout      time.Duration
	AbsoluteLifetime time.Duration
	SweepBatchSize   int
	SweepMaxBatches  int
}

// PasswordConfig holds Argon2id cost parameters.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// SecurityConfig tunes brute-force throttling.
type SecurityConfig struct {
	EnableIPThrottle        bool
	EnableRefreshThrottle   bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// AuditConfig controls the buffered audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:      "ag",
			IdleTimeout:      30 * time.Minute,
			AbsoluteLifetime: 24 * time.Hour,
			SweepBatchSize:   100,
			SweepMaxBatches:  10,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 4,
			SaltLength:  16,
			KeyLength:   32,
		},
		Security: SecurityConfig{
			EnableIPThrottle:        true,
			EnableRefreshThrottle:   true,
			MaxLoginAttempts:        5,
			LoginCooldownDuration:   15 * time.Minute,
			MaxRefreshAttempts:      30,
			RefreshCooldownDuration: time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks cross-field consistency. Per-component parameter checks
// happen in the component constructors at build time.
func (c *Config) Validate() error {
	if c.Session.IdleTimeout <= 0 {
		return errors.New("session idle timeout must be positive")
	}
	if c.Session.AbsoluteLifetime < c.Session.IdleTimeout {
		return errors.New("session absolute lifetime must be >= idle timeout")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("session redis prefix required")
	}

	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return errors.New("refresh TTL must be >= access TTL")
	}

	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("max login attempts must be positive")
	}
	if c.Security.LoginCooldownDuration <= 0 {
		return errors.New("login cooldown must be positive")
	}
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 || c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("refresh throttle requires positive budget and cooldown")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be positive")
	}

	if c.ProductionMode {
		if c.Token.SigningMethod != "ed25519" {
			return errors.New("production mode requires ed25519 signing")
		}
		if c.Token.AccessTTL > time.Hour {
			return errors.New("production mode requires access TTL <= 1h")
		}
		if !c.Security.EnableIPThrottle {
			return errors.New("production mode requires IP throttling")
		}
	}

	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	if cfg.Token.VerifyKeys != nil {
		keys := make(map[string][]byte, len(cfg.Token.VerifyKeys))
		for kid, key := range cfg.Token.VerifyKeys {
			keys[kid] = cloneBytes(key)
		}
		out.Token.VerifyKeys = keys
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
