package app

import (
	"errors"

	"duet/cmd/security/token"
)

// minHMACKeyBytes is measured in bytes, not runes: the key is used raw.
const minHMACKeyBytes = 32

// ValidateSecurityConfig enforces the token hashing policy at startup.
// hasher is the one the session service will use, so the check covers the
// runtime path rather than just the environment.
func ValidateSecurityConfig(cfg Config, hasher token.Hasher) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	if _, err := token.HMACKeyFromEnv(minHMACKeyBytes); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: DUET_REQUIRE_TOKEN_HMAC=true but DUET_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: DUET_REQUIRE_TOKEN_HMAC=true but DUET_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	if !hasher.Keyed() {
		return errors.New("security policy: DUET_REQUIRE_TOKEN_HMAC=true but the token hasher is not keyed")
	}
	return nil
}
