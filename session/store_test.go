package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, idle, absolute time.Duration) (*Store, *testClock, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clock := newTestClock()
	store := NewStore(rdb, Config{
		Prefix:              "ag",
		IdleTimeout:         idle,
		MaxAbsoluteLifetime: absolute,
		Now:                 clock.Now,
	})

	return store, clock, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestCreateAndValidate(t *testing.T) {
	store, _, _, cleanup := newTestStore(t, 15*time.Minute, 24*time.Hour)
	defer cleanup()

	ctx := context.Background()
	sid, err := store.Create(ctx, "user-1", []string{"admin", "editor"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if sid == "" {
		t.Fatal("empty session ID")
	}

	sess, err := store.Validate(ctx, sid)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if sess.PrincipalID != "user-1" {
		t.Fatalf("principal = %q, want user-1", sess.PrincipalID)
	}
	if len(sess.Roles) != 2 || sess.Roles[0] != "admin" || sess.Roles[1] != "editor" {
		t.Fatalf("roles = %v", sess.Roles)
	}
	if sess.SessionID != sid {
		t.Fatalf("session ID = %q, want %q", sess.SessionID, sid)
	}
}

func TestValidateUnknownSession(t *testing.T) {
	store, _, _, cleanup := newTestStore(t, 15*time.Minute, 24*time.Hour)
	defer cleanup()

	if _, err := store.Validate(context.Background(), "does-not-exist"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := store.Validate(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty ID err = %v, want ErrNotFound", err)
	}
}

func TestSlidingExpiry(t *testing.T) {
	store, clock, _, cleanup := newTestStore(t, 900*time.Second, 24*time.Hour)
	defer cleanup()

	ctx := context.Background()
	sid, err := store.Create(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Each validated access inside the idle window extends the deadline.
	for i := 0; i < 5; i++ {
		clock.Advance(800 * time.Second)
		if _, err := store.Validate(ctx, sid); err != nil {
			t.Fatalf("validate at step %d failed: %v", i, err)
		}
	}

	clock.Advance(901 * time.Second)
	if _, err := store.Validate(ctx, sid); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}

	// An expired session is removed, so a second attempt reports not found.
	if _, err := store.Validate(ctx, sid); !errors.Is(err, ErrNotFound) {
		t.Fatalf("post-expiry err = %v, want ErrNotFound", err)
	}
}

func TestAbsoluteLifetimeCapsSliding(t *testing.T) {
	store, clock, _, cleanup := newTestStore(t, 30*time.Minute, 2*time.Hour)
	defer cleanup()

	ctx := context.Background()
	sid, err := store.Create(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Constant activity cannot push a session past its absolute lifetime.
	for i := 0; i < 7; i++ {
		clock.Advance(17 * time.Minute)
		if _, err := store.Validate(ctx, sid); err != nil {
			t.Fatalf("validate at step %d failed: %v", i, err)
		}
	}

	clock.Advance(17 * time.Minute)
	if _, err := store.Validate(ctx, sid); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestRevoke(t *testing.T) {
	store, _, _, cleanup := newTestStore(t, 15*time.Minute, 24*time.Hour)
	defer cleanup()

	ctx := context.Background()
	sid, err := store.Create(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := store.Revoke(ctx, sid); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if _, err := store.Validate(ctx, sid); !errors.Is(err, ErrRevoked) {
		t.Fatalf("err = %v, want ErrRevoked", err)
	}

	// Idempotent on repeat and on unknown IDs.
	if err := store.Revoke(ctx, sid); err != nil {
		t.Fatalf("second revoke failed: %v", err)
	}
	if err := store.Revoke(ctx, "never-existed"); err != nil {
		t.Fatalf("unknown revoke failed: %v", err)
	}
	if err := store.Revoke(ctx, ""); err != nil {
		t.Fatalf("empty revoke failed: %v", err)
	}
}

func TestRevokeAllForPrincipal(t *testing.T) {
	store, _, _, cleanup := newTestStore(t, 15*time.Minute, 24*time.Hour)
	defer cleanup()

	ctx := context.Background()
	var sids []string
	for i := 0; i < 3; i++ {
		sid, err := store.Create(ctx, "user-1", nil)
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		sids = append(sids, sid)
	}
	other, err := store.Create(ctx, "user-2", nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	n, err := store.RevokeAllForPrincipal(ctx, "user-1")
	if err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked %d, want 3", n)
	}

	for _, sid := range sids {
		if _, err := store.Validate(ctx, sid); !errors.Is(err, ErrRevoked) {
			t.Fatalf("session %s err = %v, want ErrRevoked", sid, err)
		}
	}
	if _, err := store.Validate(ctx, other); err != nil {
		t.Fatalf("unrelated principal's session failed: %v", err)
	}
}

func TestRevokeVisibleToConcurrentValidate(t *testing.T) {
	store, _, _, cleanup := newTestStore(t, 15*time.Minute, 24*time.Hour)
	defer cleanup()

	ctx := context.Background()
	sid, err := store.Create(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Validators hammer the session while it gets revoked. Any Validate
	// that starts after Revoke returned must fail; one that overlaps the
	// revoke may legitimately win the race and succeed.
	var revoked atomic.Bool
	var violations atomic.Int64
	done := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				startedAfterRevoke := revoked.Load()
				_, err := store.Validate(ctx, sid)
				if err == nil && startedAfterRevoke {
					violations.Add(1)
				}
			}
		}()
	}

	if err := store.Revoke(ctx, sid); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	revoked.Store(true)

	// No stale-read window: the very next validation already fails.
	if _, err := store.Validate(ctx, sid); !errors.Is(err, ErrRevoked) {
		t.Fatalf("post-revoke err = %v, want ErrRevoked", err)
	}

	time.Sleep(50 * time.Millisecond)
	close(done)
	wg.Wait()

	if n := violations.Load(); n != 0 {
		t.Fatalf("%d validations succeeded after revoke completed", n)
	}
	if _, err := store.Validate(ctx, sid); !errors.Is(err, ErrRevoked) {
		t.Fatalf("final err = %v, want ErrRevoked", err)
	}
}

func TestValidateKeepsAbsoluteTTL(t *testing.T) {
	store, clock, rdb, cleanup := newTestStore(t, 15*time.Minute, 24*time.Hour)
	defer cleanup()

	ctx := context.Background()
	sid, err := store.Create(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	clock.Advance(10 * time.Minute)
	if _, err := store.Validate(ctx, sid); err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	// The slide write re-asserts the remaining absolute lifetime; the blob
	// never ends up without an expiry.
	ttl, err := rdb.TTL(ctx, "ag:s:"+sid).Result()
	if err != nil {
		t.Fatalf("ttl failed: %v", err)
	}
	if ttl <= 0 {
		t.Fatalf("ttl = %v, want positive", ttl)
	}
	if want := 24*time.Hour - 10*time.Minute; ttl > want {
		t.Fatalf("ttl = %v, want <= %v", ttl, want)
	}
}

func TestValidateCorruptBlob(t *testing.T) {
	store, _, rdb, cleanup := newTestStore(t, 15*time.Minute, 24*time.Hour)
	defer cleanup()

	ctx := context.Background()
	if err := rdb.Set(ctx, "ag:s:corrupt-id", "not a session blob", 0).Err(); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if _, err := store.Validate(ctx, "corrupt-id"); !errors.Is(err, ErrSessionCorrupt) {
		t.Fatalf("err = %v, want ErrSessionCorrupt", err)
	}
}

func TestSweepRemovesIdleExpired(t *testing.T) {
	store, clock, _, cleanup := newTestStore(t, 10*time.Minute, 24*time.Hour)
	defer cleanup()

	ctx := context.Background()
	stale := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		sid, err := store.Create(ctx, "user-1", nil)
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		stale = append(stale, sid)
	}

	clock.Advance(11 * time.Minute)

	fresh, err := store.Create(ctx, "user-2", nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	removed, err := store.Sweep(ctx, 50, 10)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if removed != 4 {
		t.Fatalf("removed %d, want 4", removed)
	}

	for _, sid := range stale {
		if _, err := store.Validate(ctx, sid); !errors.Is(err, ErrNotFound) {
			t.Fatalf("stale session err = %v, want ErrNotFound", err)
		}
	}
	if _, err := store.Validate(ctx, fresh); err != nil {
		t.Fatalf("fresh session failed: %v", err)
	}
}

func TestSweepHonorsContextCancellation(t *testing.T) {
	store, clock, _, cleanup := newTestStore(t, 10*time.Minute, 24*time.Hour)
	defer cleanup()

	ctx := context.Background()
	if _, err := store.Create(ctx, "user-1", nil); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	clock.Advance(11 * time.Minute)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	if _, err := store.Sweep(cancelled, 50, 10); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestActiveSessionIDs(t *testing.T) {
	store, _, _, cleanup := newTestStore(t, 15*time.Minute, 24*time.Hour)
	defer cleanup()

	ctx := context.Background()
	sid, err := store.Create(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	ids, err := store.ActiveSessionIDs(ctx, "user-1")
	if err != nil {
		t.Fatalf("active IDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != sid {
		t.Fatalf("ids = %v, want [%s]", ids, sid)
	}

	if err := store.Revoke(ctx, sid); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	ids, err = store.ActiveSessionIDs(ctx, "user-1")
	if err != nil {
		t.Fatalf("active IDs failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("ids after revoke = %v, want empty", ids)
	}
}
