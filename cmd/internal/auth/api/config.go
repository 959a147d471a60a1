package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Cookie names shared with the browser client.
const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
)

// Config controls HTTP behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	// Per-IP token bucket for login and account creation.
	LoginRate   int
	LoginWindow time.Duration
	LoginBurst  int
}

// DefaultConfig matches the browser client: cross-site cookies over HTTPS.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:   64 << 10,
		CookiePath:     "/",
		CookieSecure:   true,
		CookieSameSite: http.SameSiteNoneMode,
		LoginRate:      10,
		LoginWindow:    time.Minute,
		LoginBurst:     5,
	}
}

// LoadConfigFromEnv loads config from DUET_* variables with safe defaults.
func LoadConfigFromEnv() Config {
	d := DefaultConfig()
	cfg := Config{
		TrustProxy:     envBool("DUET_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:   envInt64("DUET_AUTH_MAX_BODY_BYTES", d.MaxBodyBytes),
		CookiePath:     envString("DUET_COOKIE_PATH", d.CookiePath),
		CookieDomain:   envString("DUET_COOKIE_DOMAIN", ""),
		CookieSecure:   envBool("DUET_COOKIE_SECURE", d.CookieSecure),
		CookieSameSite: parseSameSite(envString("DUET_COOKIE_SAMESITE", "none")),
		LoginRate:      envInt("DUET_AUTH_LOGIN_RATE", d.LoginRate),
		LoginWindow:    envDuration("DUET_AUTH_LOGIN_WINDOW", d.LoginWindow),
		LoginBurst:     envInt("DUET_AUTH_LOGIN_BURST", d.LoginBurst),
	}

	// Browsers drop SameSite=None cookies that are not Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	return cfg
}

func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
