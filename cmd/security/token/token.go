package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the token HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "DUET_TOKEN_HMAC_KEY"

	// DefaultBytes yields 256-bit secrets (43 base64url chars).
	DefaultBytes = 32
	// MinBytes is the smallest accepted secret size (128 bits).
	MinBytes = 16
)

// New returns a URL-safe random secret built from nBytes of crypto/rand output.
func New(nBytes int) (string, error) {
	if nBytes < MinBytes {
		return "", fmt.Errorf("%w: got %d bytes, want >= %d", ErrTokenSize, nBytes, MinBytes)
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Hasher turns plain secrets into stable 64-char hex digests.
// The zero value hashes with plain SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher returns an HMAC-SHA256 hasher for key, or a SHA-256 hasher when key is empty.
func NewHasher(key []byte) Hasher {
	if len(key) == 0 {
		return Hasher{}
	}
	k := make([]byte, len(key))
	copy(k, key)
	return Hasher{key: k}
}

// HasherFromEnv builds a Hasher from DUET_TOKEN_HMAC_KEY (SHA-256 fallback when unset).
func HasherFromEnv() Hasher {
	return NewHasher([]byte(strings.TrimSpace(os.Getenv(HMACEnvKey))))
}

// Keyed reports whether the hasher is in HMAC mode.
func (h Hasher) Keyed() bool { return len(h.key) > 0 }

// Hash returns the hex digest of s.
func (h Hasher) Hash(s string) string {
	if len(h.key) == 0 {
		sum := sha256.Sum256([]byte(s))
		return hex.EncodeToString(sum[:])
	}
	m := hmac.New(sha256.New, h.key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// Equal compares two strings in constant time (for equal lengths).
// Empty strings never match.
func Equal(a, b string) bool {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
