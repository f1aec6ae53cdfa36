// Package session implements the server-side session store: opaque
// 128-bit identifiers mapped to compact binary records in Redis, with
// sliding idle expiry bounded by an absolute lifetime, idempotent
// revocation, and bounded batched sweeps.
package session
