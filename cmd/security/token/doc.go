// Package token provides the session-token primitives for duet.
//
// It is the single source of truth for:
//   - minting opaque access/refresh secrets (crypto/rand, base64url)
//   - hashing secrets for server-side storage (HMAC-SHA256 when DUET_TOKEN_HMAC_KEY is set,
//     SHA-256 otherwise)
//   - constant-time comparison of stored hashes
//
// Plain secrets travel only in cookies; the ledger stores hashes.
package token
