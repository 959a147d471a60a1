package authapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"duet/cmd/internal/auth/session"
)

// pairFromCookies reads the presented pair. Missing cookies yield empty fields.
func pairFromCookies(r *http.Request) session.Pair {
	var p session.Pair
	if c, err := r.Cookie(AccessCookieName); err == nil {
		p.Access = strings.TrimSpace(c.Value)
	}
	if c, err := r.Cookie(RefreshCookieName); err == nil {
		p.Refresh = strings.TrimSpace(c.Value)
	}
	return p
}

// writeSessionCookies sets both cookies to pair, or clears them when pair is empty.
func (h *Handler) writeSessionCookies(w http.ResponseWriter, pair session.Pair) {
	if pair.Empty() {
		h.clearSessionCookies(w)
		return
	}
	maxAge := int(h.sessCfg.RefreshTTL / time.Second)
	h.setCookie(w, AccessCookieName, pair.Access, maxAge)
	h.setCookie(w, RefreshCookieName, pair.Refresh, maxAge)
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	h.setCookie(w, AccessCookieName, "", -1)
	h.setCookie(w, RefreshCookieName, "", -1)
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	}
	if maxAge < 0 {
		c.Expires = time.Unix(0, 0).UTC()
	}
	http.SetCookie(w, c)
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
