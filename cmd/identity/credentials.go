package identity

import (
	"errors"
	"sync"

	"duet/cmd/security/password"
)

// Credentials hashes and checks account passwords.
// Clear-text passwords are never stored or logged.
type Credentials struct {
	cfg password.Config

	dummyOnce sync.Once
	dummy     string
}

// NewCredentials wraps a password config (see password.FromEnv).
func NewCredentials(cfg password.Config) *Credentials {
	return &Credentials{cfg: cfg}
}

// Hash validates plain against the password policy and returns its PHC hash.
// Policy failures are ErrInvalidInput with a user-presentable Msg.
func (c *Credentials) Hash(plain string) (string, error) {
	const op = "identity.HashPassword"

	enc, err := c.cfg.Hash(plain)
	switch {
	case err == nil:
		return enc, nil
	case errors.Is(err, password.ErrPasswordTooShort):
		return "", invalid(op, "password too short")
	case errors.Is(err, password.ErrPasswordTooLong):
		return "", invalid(op, "password too long")
	case errors.Is(err, password.ErrWeakPassword):
		return "", invalid(op, "password too weak")
	default:
		return "", err
	}
}

// Verify reports whether plain matches the stored hash. Malformed hashes never match.
func (c *Credentials) Verify(hash, plain string) bool {
	ok, err := c.cfg.Verify(hash, plain)
	return err == nil && ok
}

// VerifyAbsent burns the same work as Verify for a user that does not exist,
// so login latency does not reveal which usernames are registered.
func (c *Credentials) VerifyAbsent(plain string) {
	c.dummyOnce.Do(func() {
		cfg := c.cfg
		cfg.Policy.MinLength = 1
		c.dummy, _ = cfg.Hash("duet-absent-user-placeholder")
	})
	if c.dummy != "" {
		_, _ = c.cfg.Verify(c.dummy, plain)
	}
}
