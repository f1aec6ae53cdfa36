// Package credential verifies login attempts against stored Argon2id
// secret hashes.
//
// Two rules hold everywhere in this package:
//
//   - Comparison is constant time (crypto/subtle over freshly derived keys).
//   - Failure is uniform. Unknown identifier, wrong secret, and corrupt
//     stored hash all return [ErrInvalidCredentials] after equivalent
//     Argon2 work, so account enumeration through timing or error content
//     is not possible.
package credential
