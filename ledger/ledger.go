package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRevoked is returned when a jti has already been revoked or consumed.
var ErrRevoked = errors.New("token revoked")

// ErrRedisUnavailable wraps Redis transport failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

const defaultPrefix = "agt"

// Ledger records revoked refresh jtis in Redis. A jti that is absent is
// active; entries carry a TTL matching the token's remaining lifetime so the
// ledger never outgrows the set of tokens that could still be replayed.
type Ledger struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// Config controls key naming and the injected clock.
type Config struct {
	Prefix string
	Now    func() time.Time
}

// New builds a ledger on the given Redis client.
func New(client redis.UniversalClient, cfg Config) *Ledger {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{redis: client, prefix: prefix, now: now}
}

func (l *Ledger) key(jti string) string {
	return l.prefix + ":j:" + jti
}

// Revoke marks a jti as revoked until expiresAt. Idempotent: revoking an
// already-revoked jti refreshes the entry and succeeds.
func (l *Ledger) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.now())
	if ttl <= 0 {
		// Already past natural expiry, nothing left to revoke.
		return nil
	}
	if err := l.redis.Set(ctx, l.key(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Consume atomically revokes a jti, failing with [ErrRevoked] if it was
// already revoked. This is the rotation compare-and-set: exactly one caller
// wins a concurrent refresh race, every replay of a rotated token loses.
func (l *Ledger) Consume(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.now())
	if ttl <= 0 {
		return ErrRevoked
	}
	ok, err := l.redis.SetNX(ctx, l.key(jti), "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !ok {
		return ErrRevoked
	}
	return nil
}

// IsRevoked reports whether a jti is present in the ledger.
func (l *Ledger) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := l.redis.Exists(ctx, l.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}
