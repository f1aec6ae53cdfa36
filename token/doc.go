// Package token signs and verifies the stateless proof pair: short-lived
// access JWTs and longer-lived refresh JWTs.
//
// Access verification is deliberately ledger-free. Revoking a refresh jti
// cannot retract an already-issued, unexpired access token; that is the
// inherent trade-off of stateless access tokens, bounded by keeping the
// access TTL short.
package token
