// Package authgate is a Redis-backed authentication core supporting two
// explicit proof strategies: opaque server-side sessions with sliding
// expiry, and signed access+refresh token pairs with one-shot rotation.
//
// The [Gateway] is the single entry point. Build one with [New]:
//
//	gw, err := authgate.New().
//		WithRedis(client).
//		WithCredentialSource(source).
//		Build()
//
// Design rules the package holds everywhere:
//
//   - The strategy is stated by the caller on every operation and never
//     inferred from the proof's shape.
//   - Login failures are uniform. Unknown identifiers cost the same hashing
//     work as wrong secrets and return the same error.
//   - Authentication failures collapse to [ErrUnauthenticated]; the audit
//     stream carries the detailed cause.
//   - Revocation is immediate for sessions and refresh tokens. Access
//     tokens are stateless and stay verifiable until expiry, so access TTLs
//     should be short.
package authgate
