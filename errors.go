package authgate

import "errors"

// ErrInvalidCredentials is the uniform login failure. Unknown identifier and
// wrong secret are indistinguishable to callers.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrUnauthenticated is the uniform authentication failure. Missing, expired,
// revoked, malformed, and forged proofs all collapse to this error; the
// audit stream carries the distinction, the caller does not.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrLoginRateLimited is returned when the login attempt budget for an
// identifier or client IP is exhausted.
var ErrLoginRateLimited = errors.New("login rate limited")

// ErrRefreshRateLimited is returned when the refresh budget for a principal
// is exhausted.
var ErrRefreshRateLimited = errors.New("refresh rate limited")

// ErrInvalidStrategy is returned when an operation names a strategy the
// gateway does not recognize. The strategy is always taken from the caller,
// never guessed from the shape of the proof.
var ErrInvalidStrategy = errors.New("invalid authentication strategy")

// ErrGatewayClosed is returned by operations on a closed gateway.
var ErrGatewayClosed = errors.New("gateway closed")

// ErrRedisUnavailable wraps Redis transport failures surfaced by gateway
// operations that cannot fail closed silently.
var ErrRedisUnavailable = errors.New("redis unavailable")
