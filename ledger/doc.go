// Package ledger tracks revoked refresh token IDs in Redis.
//
// The ledger stores only revocations. Issued tokens are never registered,
// so an absent jti means active and a crashed issue path can never strand
// an unusable token. Entries expire with the token they revoke.
package ledger
