package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandler_PlainLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, false))

	log.Info("http.request", "method", "post", "path", "/login", "status", 401, "duration_ms", int64(3), "note", "two words")

	line := buf.String()
	for _, want := range []string{
		"[INFO] http.request",
		"method=POST",
		"path=/login",
		"status=401",
		"duration=3ms",
		`note="two words"`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("unexpected ANSI codes with color off: %q", line)
	}
}

func TestPrettyHandler_GroupsAndAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, false)).
		With("component", "authapi").
		WithGroup("audit").
		With("event", "login")

	log.Warn("auth.login.fail", "user", "alice", slog.Group("client", "ip", "203.0.113.7"))

	line := buf.String()
	for _, want := range []string{
		"[WARN] auth.login.fail",
		"component=authapi",
		"audit.event=login",
		"audit.user=alice",
		"audit.client.ip=203.0.113.7",
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
}

func TestPrettyHandler_LevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, true))

	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}

	log.Error("server.fail", "status", 503)
	line := buf.String()
	if !strings.Contains(line, ansiRed+"[ERROR]"+ansiReset) {
		t.Fatalf("expected colored error tag in %q", line)
	}
	if !strings.Contains(line, "status="+ansiRed+"503"+ansiReset) {
		t.Fatalf("expected colored status in %q", line)
	}
}

func TestNewHandler_Formats(t *testing.T) {
	t.Parallel()

	cases := []struct {
		format string
		want   string
	}{
		{format: "", want: `"msg":"boot"`},
		{format: "json", want: `"msg":"boot"`},
		{format: "text", want: "msg=boot"},
		{format: "pretty", want: "[INFO] boot"},
	}

	for _, tc := range cases {
		var buf bytes.Buffer
		slog.New(newHandler(&buf, "info", tc.format, false)).Info("boot")
		if !strings.Contains(buf.String(), tc.want) {
			t.Fatalf("format=%q output=%q want substring %q", tc.format, buf.String(), tc.want)
		}
	}
}
