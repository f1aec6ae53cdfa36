package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kwarden/authgate/internal"
)

// ErrNotFound is returned when no session exists for an identifier.
var ErrNotFound = errors.New("no such session")

// ErrExpired is returned when a session's idle or absolute deadline passed.
var ErrExpired = errors.New("session expired")

// ErrRevoked is returned when a session was explicitly revoked.
var ErrRevoked = errors.New("session revoked")

// ErrSessionCorrupt is returned when a stored session blob is invalid.
var ErrSessionCorrupt = errors.New("session corrupt")

// ErrRedisUnavailable wraps Redis transport failures. Validation fails
// closed when the backend is unreachable.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Config holds the store's expiry policy and key namespace.
type Config struct {
	// Prefix namespaces every Redis key written by the store.
	Prefix string
	// IdleTimeout is the sliding-window extension applied on each
	// validated access.
	IdleTimeout time.Duration
	// MaxAbsoluteLifetime caps a session's total lifetime regardless of
	// activity. Redis key TTLs are set from this bound.
	MaxAbsoluteLifetime time.Duration
	// Now is the injected clock. Defaults to time.Now.
	Now func() time.Time
}

// Store is a Redis-backed session store implementing sliding idle expiry
// with an absolute lifetime cap, immediate revocation, and batched sweeps.
//
// Concurrent Validate calls on the same identifier race on the slide write;
// last-writer-wins is acceptable because every candidate write carries a
// deadline >= the one it replaces. Revocation uses a separate marker key
// checked before every validation, so a revoke is visible to all subsequent
// validations with no stale-read window.
type Store struct {
	redis       redis.UniversalClient
	prefix      string
	idleTimeout time.Duration
	maxLifetime time.Duration
	now         func() time.Time
}

// NewStore creates a session [Store] backed by the given Redis client.
func NewStore(redisClient redis.UniversalClient, cfg Config) *Store {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		redis:       redisClient,
		prefix:      cfg.Prefix,
		idleTimeout: cfg.IdleTimeout,
		maxLifetime: cfg.MaxAbsoluteLifetime,
		now:         now,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) revokedKey(sessionID string) string {
	return s.prefix + ":r:" + sessionID
}

func (s *Store) principalKey(principalID string) string {
	return s.prefix + ":p:" + principalID
}

// Create generates a fresh session identifier for the principal and persists
// the record. The Redis key TTL is the absolute lifetime; the idle deadline
// is tracked inside the record.
//
//	Performance: 1 Redis transaction (SET + SADD + EXPIRE).
func (s *Store) Create(ctx context.Context, principalID string, roles []string) (string, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}
	sessionID := sid.String()

	now := s.now()
	sess := &Session{
		SessionID:   sessionID,
		PrincipalID: principalID,
		Roles:       roles,
		CreatedAt:   now.Unix(),
		ExpiresAt:   s.idleDeadline(now.Unix(), now.Unix()),
		LastSeenAt:  now.Unix(),
	}

	data, err := Encode(sess)
	if err != nil {
		return "", err
	}

	principalKey := s.principalKey(principalID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sessionID), data, s.maxLifetime)
		pipe.SAdd(ctx, principalKey, sessionID)
		pipe.Expire(ctx, principalKey, s.maxLifetime)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return sessionID, nil
}

// Validate resolves a session identifier. On success it slides the idle
// deadline forward and updates LastSeenAt (last-writer-wins under
// concurrency). Failures are [ErrNotFound], [ErrExpired], [ErrRevoked], or
// [ErrSessionCorrupt].
//
//	Performance: 1 pipelined read round-trip + 1 SET on success.
func (s *Store) Validate(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrNotFound
	}

	var (
		getCmd *redis.StringCmd
		revCmd *redis.IntCmd
	)
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		revCmd = pipe.Exists(ctx, s.revokedKey(sessionID))
		getCmd = pipe.Get(ctx, s.key(sessionID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revoked, err := revCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if revoked > 0 {
		return nil, ErrRevoked
	}

	data, err := getCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID

	if sess.Revoked {
		return nil, ErrRevoked
	}

	nowUnix := s.now().Unix()
	if nowUnix >= sess.ExpiresAt || nowUnix >= sess.CreatedAt+int64(s.maxLifetime.Seconds()) {
		if err := s.deleteSession(ctx, sess.PrincipalID, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}

	sess.ExpiresAt = s.idleDeadline(sess.CreatedAt, nowUnix)
	sess.LastSeenAt = nowUnix

	updated, err := Encode(sess)
	if err != nil {
		return nil, err
	}
	// Re-assert the remaining absolute lifetime rather than KEEPTTL: if the
	// Redis TTL fired between the read and this write, KEEPTTL would
	// recreate the blob with no expiry and strand it until a sweep.
	remaining := time.Duration(sess.CreatedAt+int64(s.maxLifetime.Seconds())-nowUnix) * time.Second
	if err := s.redis.Set(ctx, s.key(sessionID), updated, remaining).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return sess, nil
}

// Revoke marks a session revoked. It is idempotent: revoking an unknown or
// already-revoked session is not an error. The record and a revocation
// marker survive until the absolute lifetime passes, so validation reports
// [ErrRevoked] rather than [ErrNotFound] for the remainder of the window.
func (s *Store) Revoke(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	key := s.key(sessionID)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return err
	}
	if sess.Revoked {
		return nil
	}
	sess.Revoked = true

	updated, err := Encode(sess)
	if err != nil {
		return err
	}

	ttl, err := s.redis.PTTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl <= 0 {
		ttl = s.maxLifetime
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.revokedKey(sessionID), "1", ttl)
		pipe.Set(ctx, key, updated, ttl)
		pipe.SRem(ctx, s.principalKey(sess.PrincipalID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// RevokeAllForPrincipal revokes every tracked session for a principal and
// returns the number revoked.
//
// Not fully atomic: a session created between the index read and the revoke
// loop is not captured. The stray session expires naturally or is caught by
// the next call.
func (s *Store) RevokeAllForPrincipal(ctx context.Context, principalID string) (int, error) {
	sessionIDs, err := s.redis.SMembers(ctx, s.principalKey(principalID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revoked := 0
	for _, sessionID := range sessionIDs {
		if err := s.Revoke(ctx, sessionID); err != nil {
			return revoked, err
		}
		revoked++
	}

	return revoked, nil
}

// ActiveSessionIDs returns tracked session IDs for a principal.
func (s *Store) ActiveSessionIDs(ctx context.Context, principalID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.principalKey(principalID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Sweep removes sessions whose idle deadline has passed. Work is bounded:
// at most maxBatches SCAN pages of batchSize keys per invocation, and the
// context is checked between batches so a sweep can be cancelled without
// leaving partial entry state (each removal is a single DEL).
//
// Redis TTLs already bound absolute lifetime; Sweep exists to reclaim
// idle-expired records before their absolute TTL fires.
func (s *Store) Sweep(ctx context.Context, batchSize, maxBatches int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxBatches <= 0 {
		maxBatches = 10
	}

	pattern := s.prefix + ":s:*"
	prefixLen := len(s.prefix) + 3

	var (
		cursor  uint64
		removed int
	)

	for batch := 0; batch < maxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		keys, next, err := s.redis.Scan(ctx, cursor, pattern, int64(batchSize)).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		n, err := s.sweepBatch(ctx, keys, prefixLen)
		removed += n
		if err != nil {
			return removed, err
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

func (s *Store) sweepBatch(ctx context.Context, keys []string, prefixLen int) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	nowUnix := s.now().Unix()
	removed := 0
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}

		sess, err := Decode(data)
		if err != nil {
			// Unreadable blobs are reclaimed rather than left behind.
			if delErr := s.redis.Del(ctx, keys[i]).Err(); delErr == nil {
				removed++
			}
			continue
		}

		if nowUnix < sess.ExpiresAt && nowUnix < sess.CreatedAt+int64(s.maxLifetime.Seconds()) {
			continue
		}

		sessionID := keys[i][prefixLen:]
		if err := s.deleteSession(ctx, sess.PrincipalID, sessionID); err != nil {
			return removed, err
		}
		removed++
	}

	return removed, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) idleDeadline(createdAtUnix, nowUnix int64) int64 {
	deadline := nowUnix + int64(s.idleTimeout.Seconds())
	limit := createdAtUnix + int64(s.maxLifetime.Seconds())
	if deadline > limit {
		return limit
	}
	return deadline
}

func (s *Store) deleteSession(ctx context.Context, principalID, sessionID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		pipe.SRem(ctx, s.principalKey(principalID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
