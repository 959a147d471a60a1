// Package password hashes and verifies account credentials with Argon2id.
//
// Hashes use the PHC-style encoding
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// and are treated as untrusted input on Verify: parameters far above the configured
// cost are rejected before any key derivation runs.
package password
