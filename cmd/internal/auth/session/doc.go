// Package session is duet's dual-token session authority.
//
// A successful login yields a Pair: a short-lived access token and a longer-lived
// refresh token, both opaque random strings. The ledger stores only keyed hashes
// of them, in a Record that the owning user references by id.
//
// Authenticate classifies a presented pair by time:
//
//	now <= access expiry                  valid, pair unchanged
//	access expiry < now <= refresh expiry rotated: old record replaced by a fresh pair
//	now > refresh expiry                  expired: record removed
//
// Rotation is detach, delete, mint, insert, attach. Any step that reports
// "no change" aborts with an unauthorized result. Callers only ever see
// authorized-or-not plus the pair to hand back to the client.
package session
