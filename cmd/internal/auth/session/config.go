package session

import (
	"os"
	"strconv"
	"time"

	"duet/cmd/security/token"
)

// Config holds the session subsystem knobs.
type Config struct {
	// AccessTTL and RefreshTTL are measured from the same issuance instant.
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// TokenBytes is the entropy of each opaque token.
	TokenBytes int

	// LockTimeout bounds the wait for a record's rotation lock.
	LockTimeout time.Duration

	// SweepInterval is how often fully expired records are purged; SweepBatch caps one query.
	SweepInterval time.Duration
	SweepBatch    int
}

// DefaultConfig mirrors the 15 minute / 2 hour windows duet has always used.
func DefaultConfig() Config {
	return Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    120 * time.Minute,
		TokenBytes:    token.DefaultBytes,
		LockTimeout:   5 * time.Second,
		SweepInterval: 10 * time.Minute,
		SweepBatch:    500,
	}
}

// Validate enforces 0 < access TTL <= refresh TTL and sane sizes.
func (c Config) Validate() error {
	switch {
	case c.AccessTTL <= 0 || c.RefreshTTL <= 0:
		return ErrConfig
	case c.AccessTTL > c.RefreshTTL:
		return ErrConfig
	case c.TokenBytes < token.MinBytes || c.TokenBytes > 64:
		return ErrConfig
	case c.LockTimeout <= 0 || c.SweepInterval <= 0 || c.SweepBatch <= 0:
		return ErrConfig
	}
	return nil
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - DUET_AUTH_ACCESS_TTL
//   - DUET_AUTH_REFRESH_TTL
//   - DUET_AUTH_TOKEN_BYTES
//   - DUET_AUTH_LOCK_TIMEOUT
//   - DUET_AUTH_SWEEP_INTERVAL
//   - DUET_AUTH_SWEEP_BATCH
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	durations := map[string]*time.Duration{
		"DUET_AUTH_ACCESS_TTL":     &cfg.AccessTTL,
		"DUET_AUTH_REFRESH_TTL":    &cfg.RefreshTTL,
		"DUET_AUTH_LOCK_TIMEOUT":   &cfg.LockTimeout,
		"DUET_AUTH_SWEEP_INTERVAL": &cfg.SweepInterval,
	}
	for key, dst := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		*dst = d
	}

	ints := map[string]*int{
		"DUET_AUTH_TOKEN_BYTES": &cfg.TokenBytes,
		"DUET_AUTH_SWEEP_BATCH": &cfg.SweepBatch,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		*dst = n
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
