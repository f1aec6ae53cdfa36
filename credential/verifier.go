package credential

import (
	"context"
	"errors"
)

// ErrInvalidCredentials is the uniform failure for every verification
// outcome: unknown identifier, wrong secret, malformed stored hash. Callers
// must never learn which one occurred.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Stored is the record a [Source] returns for an identifier.
type Stored struct {
	PrincipalID string
	Identifier  string
	SecretHash  string
	Roles       []string
}

// Source looks up stored credentials. Implementations are external; the
// verifier only reads from them.
type Source interface {
	Lookup(ctx context.Context, identifier string) (Stored, error)
}

// Identity is the resolved outcome of a successful verification.
type Identity struct {
	PrincipalID string
	Roles       []string
}

// Verifier checks a login attempt against a [Source].
//
// The verifier performs the full Argon2 derivation on every attempt,
// including unknown identifiers, by comparing against a fixed decoy hash.
// Combined with the uniform [ErrInvalidCredentials] result, an observer
// cannot separate "unknown user" from "wrong secret" by timing or content.
type Verifier struct {
	hasher *Hasher
	source Source

	// decoyHash is derived once at construction so the unknown-identifier
	// path costs the same Argon2 work as a real comparison.
	decoyHash string
}

// NewVerifier builds a [Verifier] over the given hasher and source.
func NewVerifier(hasher *Hasher, source Source) (*Verifier, error) {
	if hasher == nil {
		return nil, errors.New("hasher required")
	}
	if source == nil {
		return nil, errors.New("credential source required")
	}

	decoy, err := hasher.Hash("decoy-secret-equalizer")
	if err != nil {
		return nil, err
	}

	return &Verifier{
		hasher:    hasher,
		source:    source,
		decoyHash: decoy,
	}, nil
}

// Verify resolves the identifier and compares the secret. It returns the
// matched [Identity] or [ErrInvalidCredentials].
func (v *Verifier) Verify(ctx context.Context, identifier, secret string) (Identity, error) {
	if identifier == "" || secret == "" {
		return Identity{}, ErrInvalidCredentials
	}

	stored, lookupErr := v.source.Lookup(ctx, identifier)

	// The decoy only equalizes timing. Any attempt that had to fall back to
	// it (unknown identifier, record without a hash) fails unconditionally,
	// regardless of what the comparison says: the decoy's preimage is a
	// fixed constant and must never authenticate anyone.
	usedDecoy := lookupErr != nil || stored.SecretHash == ""
	hash := stored.SecretHash
	if usedDecoy {
		hash = v.decoyHash
	}

	ok, err := v.hasher.Compare(secret, hash)
	if usedDecoy || err != nil || !ok {
		return Identity{}, ErrInvalidCredentials
	}

	roles := make([]string, len(stored.Roles))
	copy(roles, stored.Roles)

	return Identity{
		PrincipalID: stored.PrincipalID,
		Roles:       roles,
	}, nil
}
