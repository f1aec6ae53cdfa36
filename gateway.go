package authgate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/kwarden/authgate/credential"
	"github.com/kwarden/authgate/internal/rate"
	"github.com/kwarden/authgate/ledger"
	"github.com/kwarden/authgate/session"
	"github.com/kwarden/authgate/token"
)

const (
	eventLogin        = "login"
	eventAuthenticate = "authenticate"
	eventRefresh      = "refresh"
	eventRefreshReuse = "refresh_reuse"
	eventLogout       = "logout"
	eventLogoutAll    = "logout_all"
)

// Gateway is the authentication facade. It verifies credentials, mints and
// checks session and token proofs, and owns revocation for both strategies.
//
// A gateway is safe for concurrent use. All methods fail closed: when the
// truth of a proof cannot be established, the caller gets
// [ErrUnauthenticated], never a pass.
type Gateway struct {
	config      Config
	verifier    *credential.Verifier
	hasher      *credential.Hasher
	sessions    *session.Store
	tokens      *token.Manager
	revocations *ledger.Ledger
	limiter     *rate.Limiter
	audit       *auditDispatcher
	metrics     *Metrics
	now         func() time.Time

	closed atomic.Bool
}

// Login verifies credentials and mints proof material for the requested
// strategy. Verification failures return [ErrInvalidCredentials] without
// revealing whether the identifier exists.
func (g *Gateway) Login(ctx context.Context, creds Credentials, strategy Strategy) (*LoginResult, error) {
	if g.closed.Load() {
		return nil, ErrGatewayClosed
	}
	if strategy != StrategySession && strategy != StrategyToken {
		return nil, ErrInvalidStrategy
	}

	ip := clientIPFromContext(ctx)

	if err := g.limiter.CheckLogin(ctx, creds.Identifier, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			g.metrics.Inc(MetricLoginRateLimited)
			g.emit(ctx, AuditEvent{
				Timestamp: g.now(),
				EventType: eventLogin,
				Strategy:  strategy.String(),
				IP:        ip,
				Error:     ErrLoginRateLimited.Error(),
			})
			return nil, ErrLoginRateLimited
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	identity, err := g.verifier.Verify(ctx, creds.Identifier, creds.Secret)
	if err != nil {
		g.metrics.Inc(MetricLoginFailure)
		// Record the failure before reporting it so the attempt counts
		// toward the budget even if the caller retries instantly.
		if incErr := g.limiter.IncrementLogin(ctx, creds.Identifier, ip); incErr != nil && !errors.Is(incErr, rate.ErrRateLimited) {
			log.Print("authgate: login throttle increment failed: ", incErr)
		}
		g.emit(ctx, AuditEvent{
			Timestamp: g.now(),
			EventType: eventLogin,
			Strategy:  strategy.String(),
			IP:        ip,
			Error:     ErrInvalidCredentials.Error(),
		})
		return nil, ErrInvalidCredentials
	}

	if err := g.limiter.ResetLogin(ctx, creds.Identifier, ip); err != nil {
		log.Print("authgate: login throttle reset failed: ", err)
	}

	result := &LoginResult{
		PrincipalID: identity.PrincipalID,
		Roles:       identity.Roles,
		Strategy:    strategy,
	}

	switch strategy {
	case StrategySession:
		sessionID, err := g.sessions.Create(ctx, identity.PrincipalID, identity.Roles)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		result.SessionID = sessionID
		g.metrics.Inc(MetricSessionCreated)
	case StrategyToken:
		pair, err := g.tokens.IssuePair(identity.PrincipalID, identity.Roles)
		if err != nil {
			return nil, err
		}
		result.Tokens = &TokenPair{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
		}
	}

	g.metrics.Inc(MetricLoginSuccess)
	g.emit(ctx, AuditEvent{
		Timestamp:   g.now(),
		EventType:   eventLogin,
		PrincipalID: identity.PrincipalID,
		SessionID:   result.SessionID,
		Strategy:    strategy.String(),
		IP:          ip,
		Success:     true,
	})

	return result, nil
}

// Authenticate resolves a proof under the stated strategy. The strategy is
// never inferred from the proof itself: a session ID presented under
// StrategyToken fails, and vice versa.
//
// Every failure collapses to [ErrUnauthenticated]. Expired, revoked,
// unknown, forged, and backend-unreachable all look identical to the
// caller; infrastructure problems are logged and audited but not exposed.
func (g *Gateway) Authenticate(ctx context.Context, strategy Strategy, proof string) (*Principal, error) {
	if g.closed.Load() {
		return nil, ErrGatewayClosed
	}

	start := g.now()
	principal, cause := g.authenticate(ctx, strategy, proof)
	g.metrics.Observe(MetricAuthenticateLatency, g.now().Sub(start))

	if cause != nil {
		g.metrics.Inc(MetricAuthenticateFailure)
		g.emit(ctx, AuditEvent{
			Timestamp: g.now(),
			EventType: eventAuthenticate,
			Strategy:  strategy.String(),
			IP:        clientIPFromContext(ctx),
			Error:     cause.Error(),
		})
		return nil, ErrUnauthenticated
	}

	g.metrics.Inc(MetricAuthenticateSuccess)
	return principal, nil
}

func (g *Gateway) authenticate(ctx context.Context, strategy Strategy, proof string) (*Principal, error) {
	switch strategy {
	case StrategySession:
		sess, err := g.sessions.Validate(ctx, proof)
		if err != nil {
			if errors.Is(err, session.ErrRedisUnavailable) {
				log.Print("authgate: session validation unavailable: ", err)
			}
			return nil, err
		}
		return &Principal{
			ID:        sess.PrincipalID,
			Roles:     sess.Roles,
			Strategy:  StrategySession,
			IssuedAt:  time.Unix(sess.CreatedAt, 0),
			SessionID: sess.SessionID,
		}, nil

	case StrategyToken:
		claims, err := g.tokens.VerifyAccess(proof)
		if err != nil {
			return nil, err
		}
		p := &Principal{
			ID:       claims.Subject,
			Roles:    claims.Roles,
			Strategy: StrategyToken,
		}
		if claims.IssuedAt != nil {
			p.IssuedAt = claims.IssuedAt.Time
		}
		return p, nil

	default:
		return nil, ErrInvalidStrategy
	}
}

// Refresh rotates a refresh token: the presented token is consumed and a
// fresh access+refresh pair is issued. Each refresh token works exactly
// once; replaying a consumed token fails and is counted as reuse.
func (g *Gateway) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if g.closed.Load() {
		return nil, ErrGatewayClosed
	}

	claims, err := g.tokens.ParseRefresh(refreshToken)
	if err != nil {
		g.metrics.Inc(MetricRefreshFailure)
		return nil, ErrUnauthenticated
	}

	if err := g.limiter.CheckRefresh(ctx, claims.Subject); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			g.metrics.Inc(MetricRefreshRateLimited)
			return nil, ErrRefreshRateLimited
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Consume is the rotation compare-and-set: of N concurrent refreshes
	// with the same token, exactly one proceeds.
	if err := g.revocations.Consume(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		if errors.Is(err, ledger.ErrRevoked) {
			g.metrics.Inc(MetricRefreshReuseDetected)
			g.metrics.Inc(MetricRefreshFailure)
			g.emit(ctx, AuditEvent{
				Timestamp:   g.now(),
				EventType:   eventRefreshReuse,
				PrincipalID: claims.Subject,
				Strategy:    StrategyToken.String(),
				IP:          clientIPFromContext(ctx),
				Error:       ledger.ErrRevoked.Error(),
			})
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	pair, err := g.tokens.IssuePair(claims.Subject, claims.Roles)
	if err != nil {
		g.metrics.Inc(MetricRefreshFailure)
		return nil, err
	}

	g.metrics.Inc(MetricRefreshSuccess)
	g.emit(ctx, AuditEvent{
		Timestamp:   g.now(),
		EventType:   eventRefresh,
		PrincipalID: claims.Subject,
		Strategy:    StrategyToken.String(),
		IP:          clientIPFromContext(ctx),
		Success:     true,
	})

	return &TokenPair{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Logout invalidates a proof under the stated strategy. Idempotent for
// already-dead proofs: revoking an expired or unknown session, or a refresh
// token already past expiry, succeeds. A malformed or forged proof returns
// [ErrUnauthenticated].
//
// For StrategyToken the proof is the refresh token. Outstanding access
// tokens issued alongside it stay verifiable until their own expiry; access
// checks are stateless by construction.
func (g *Gateway) Logout(ctx context.Context, strategy Strategy, proof string) error {
	if g.closed.Load() {
		return ErrGatewayClosed
	}

	switch strategy {
	case StrategySession:
		if err := g.sessions.Revoke(ctx, proof); err != nil {
			if errors.Is(err, session.ErrSessionCorrupt) {
				return ErrUnauthenticated
			}
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		g.metrics.Inc(MetricSessionRevoked)

	case StrategyToken:
		claims, err := g.tokens.ParseRefresh(proof)
		if err != nil {
			if errors.Is(err, token.ErrExpired) {
				// Nothing left to revoke.
				return nil
			}
			return ErrUnauthenticated
		}
		if err := g.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

	default:
		return ErrInvalidStrategy
	}

	g.metrics.Inc(MetricLogout)
	g.emit(ctx, AuditEvent{
		Timestamp: g.now(),
		EventType: eventLogout,
		Strategy:  strategy.String(),
		IP:        clientIPFromContext(ctx),
		Success:   true,
	})

	return nil
}

// LogoutAll revokes every tracked session for a principal and returns the
// number revoked. Token-strategy proofs are unaffected; refresh tokens must
// be revoked individually via [Gateway.Logout] or expire on their own.
func (g *Gateway) LogoutAll(ctx context.Context, principalID string) (int, error) {
	if g.closed.Load() {
		return 0, ErrGatewayClosed
	}

	revoked, err := g.sessions.RevokeAllForPrincipal(ctx, principalID)
	if err != nil {
		return revoked, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	g.metrics.Add(MetricSessionRevoked, uint64(revoked))
	g.metrics.Inc(MetricLogoutAll)
	g.emit(ctx, AuditEvent{
		Timestamp:   g.now(),
		EventType:   eventLogoutAll,
		PrincipalID: principalID,
		Strategy:    StrategySession.String(),
		IP:          clientIPFromContext(ctx),
		Success:     true,
		Metadata:    map[string]string{"revoked": fmt.Sprint(revoked)},
	})

	return revoked, nil
}

// RevokeRefresh marks a refresh token revoked without issuing a
// replacement. Equivalent to Logout under StrategyToken.
func (g *Gateway) RevokeRefresh(ctx context.Context, refreshToken string) error {
	return g.Logout(ctx, StrategyToken, refreshToken)
}

// Sweep reclaims idle-expired sessions in bounded batches. Intended to be
// called periodically by the host application.
func (g *Gateway) Sweep(ctx context.Context) (int, error) {
	if g.closed.Load() {
		return 0, ErrGatewayClosed
	}

	removed, err := g.sessions.Sweep(ctx, g.config.Session.SweepBatchSize, g.config.Session.SweepMaxBatches)
	g.metrics.Add(MetricSessionsSwept, uint64(removed))
	if err != nil {
		return removed, err
	}
	return removed, nil
}

// HashSecret derives a stored hash for provisioning credentials. The output
// is what a [CredentialSource] should return as SecretHash.
func (g *Gateway) HashSecret(secret string) (string, error) {
	return g.hasher.Hash(secret)
}

// Ping checks Redis availability and returns observed latency.
func (g *Gateway) Ping(ctx context.Context) (time.Duration, error) {
	return g.sessions.Ping(ctx)
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (g *Gateway) MetricsSnapshot() MetricsSnapshot {
	return g.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (g *Gateway) AuditDropped() uint64 {
	return g.audit.Dropped()
}

// Close flushes the audit dispatcher and marks the gateway unusable. Safe
// to call more than once and concurrently with in-flight operations;
// operations observing the closed flag return [ErrGatewayClosed].
func (g *Gateway) Close() {
	if g.closed.Swap(true) {
		return
	}
	g.audit.Close()
}

func (g *Gateway) emit(ctx context.Context, event AuditEvent) {
	g.audit.Emit(ctx, event)
}
