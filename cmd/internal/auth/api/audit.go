package authapi

import (
	"context"
	"log/slog"
	"net"
	"strings"
)

// Audit events are structured log records under the "audit" group, so they can
// be routed separately from request logs.

func (h *Handler) auditSignup(ctx context.Context, username string, ip net.IP, ua string) {
	h.audit(ctx, "auth.signup", username, ip, ua)
}

func (h *Handler) auditLoginSuccess(ctx context.Context, username string, ip net.IP, ua string) {
	h.audit(ctx, "auth.login.success", username, ip, ua)
}

func (h *Handler) auditLoginFailed(ctx context.Context, username string, ip net.IP, ua, reason string) {
	h.audit(ctx, "auth.login.failed", username, ip, ua, slog.String("reason", reason))
}

func (h *Handler) auditRateLimited(ctx context.Context, route string, ip net.IP, ua string) {
	h.audit(ctx, "auth.rate_limited", "", ip, ua, slog.String("route", route))
}

func (h *Handler) auditLogout(ctx context.Context, username string, removed bool, ip net.IP, ua string) {
	h.audit(ctx, "auth.logout", username, ip, ua, slog.Bool("removed", removed))
}

func (h *Handler) audit(ctx context.Context, action, username string, ip net.IP, ua string, extra ...slog.Attr) {
	attrs := make([]any, 0, 4+len(extra))
	attrs = append(attrs, slog.String("action", action))
	if username != "" {
		attrs = append(attrs, slog.String("username", username))
	}
	if ip != nil {
		attrs = append(attrs, slog.String("ip", ip.String()))
	}
	if ua = strings.TrimSpace(ua); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}
	for _, a := range extra {
		attrs = append(attrs, a)
	}
	h.log.InfoContext(ctx, action, slog.Group("audit", attrs...))
}
