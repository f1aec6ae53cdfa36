package authgate

import (
	"time"

	"github.com/kwarden/authgate/credential"
	"github.com/kwarden/authgate/internal/audit"
)

// Strategy selects which proof mechanism an operation uses. Callers state
// it explicitly on every call; the gateway never infers it from the proof.
type Strategy uint8

const (
	// StrategyUnspecified is the zero value and is rejected everywhere.
	StrategyUnspecified Strategy = iota
	// StrategySession authenticates with an opaque server-side session ID.
	StrategySession
	// StrategyToken authenticates with a self-contained signed token.
	StrategyToken
)

func (s Strategy) String() string {
	switch s {
	case StrategySession:
		return "session"
	case StrategyToken:
		return "token"
	default:
		return "unspecified"
	}
}

// Credentials is a login attempt: an identifier plus the plaintext secret.
type Credentials struct {
	Identifier string
	Secret     string
}

// TokenPair is an issued access+refresh token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Principal is the identity resolved by a successful authentication.
// IssuedAt is when the underlying proof was minted: session creation time
// or the token's iat claim.
type Principal struct {
	ID       string
	Roles    []string
	Strategy Strategy
	IssuedAt time.Time

	// SessionID is set for session-strategy authentications only.
	SessionID string
}

// LoginResult carries the proof material minted by a successful login.
// Exactly one of SessionID or Tokens is populated, matching the requested
// strategy.
type LoginResult struct {
	PrincipalID string
	Roles       []string
	Strategy    Strategy

	SessionID string
	Tokens    *TokenPair
}

// StoredCredential is re-exported for [CredentialSource] implementors.
type StoredCredential = credential.Stored

// CredentialSource supplies stored credentials to the gateway's verifier.
type CredentialSource = credential.Source

// AuditEvent is a single security event emitted by the gateway.
type AuditEvent = audit.Event

// AuditSink receives audit events from the gateway's dispatcher.
type AuditSink = audit.Sink

// NoOpSink drops every audit event.
type NoOpSink = audit.NoOpSink
