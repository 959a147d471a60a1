package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost. MemoryKiB is in KiB as argon2.IDKey expects.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy bounds accepted passwords (rune counts).
type Policy struct {
	MinLength      int
	MaxLength      int
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns interactive-login defaults.
func DefaultConfig() Config {
	threads := min(max(runtime.NumCPU(), 1), 4)

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4].
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 8,
			MaxLength: 256,
		},
	}
}

type envU32 struct {
	key      string
	min, max uint32
	dst      func(*Config, uint32) error
}

// FromEnv loads config from environment variables on top of DefaultConfig.
//
// Env surface:
//   - DUET_PASSWORD_MIN_LEN, DUET_PASSWORD_MAX_LEN, DUET_PASSWORD_REJECT_VERY_WEAK
//   - DUET_ARGON2_MEMORY_KIB, DUET_ARGON2_ITERATIONS, DUET_ARGON2_PARALLELISM
//   - DUET_ARGON2_SALT_LEN, DUET_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	fields := []envU32{
		{"DUET_PASSWORD_MIN_LEN", 1, 1024, func(c *Config, v uint32) error { c.Policy.MinLength = int(v); return nil }},
		{"DUET_PASSWORD_MAX_LEN", 1, 4096, func(c *Config, v uint32) error { c.Policy.MaxLength = int(v); return nil }},
		{"DUET_ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, func(c *Config, v uint32) error { c.Params.MemoryKiB = v; return nil }},
		{"DUET_ARGON2_ITERATIONS", 1, 20, func(c *Config, v uint32) error { c.Params.Iterations = v; return nil }},
		{"DUET_ARGON2_PARALLELISM", 1, 64, func(c *Config, v uint32) error {
			if v > math.MaxUint8 {
				return fmt.Errorf("out of range [0..%d]", math.MaxUint8)
			}
			c.Params.Parallelism = uint8(v)
			return nil
		}},
		{"DUET_ARGON2_SALT_LEN", 8, 64, func(c *Config, v uint32) error { c.Params.SaltLength = v; return nil }},
		{"DUET_ARGON2_KEY_LEN", 16, 64, func(c *Config, v uint32) error { c.Params.KeyLength = v; return nil }},
	}

	for _, f := range fields {
		raw, ok := os.LookupEnv(f.key)
		if !ok {
			continue
		}
		v, err := parseBoundedU32(raw, f.min, f.max)
		if err == nil {
			err = f.dst(&cfg, v)
		}
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", f.key, err)
		}
	}

	if raw, ok := os.LookupEnv("DUET_PASSWORD_REJECT_VERY_WEAK"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("DUET_PASSWORD_REJECT_VERY_WEAK: invalid boolean")
		}
		cfg.Policy.RejectVeryWeak = b
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf("password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength, cfg.Policy.MaxLength)
	}
	return cfg, nil
}

func parseBoundedU32(s string, lo, hi uint32) (uint32, error) {
	u64, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	u := uint32(u64)
	if u < lo || u > hi {
		return 0, fmt.Errorf("out of range [%d..%d]", lo, hi)
	}
	return u, nil
}
