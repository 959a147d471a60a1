package authapi

import (
	"net"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIPThrottle_BurstThenRefill(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	th := newIPThrottle(6, time.Minute, 3)
	ip := net.ParseIP("198.51.100.4")

	for i := 0; i < 3; i++ {
		if ok, _ := th.allow(ip, now); !ok {
			t.Fatalf("attempt %d should pass within burst", i)
		}
	}

	ok, wait := th.allow(ip, now)
	if ok {
		t.Fatalf("expected throttle after burst")
	}
	if wait < 9*time.Second || wait > 11*time.Second {
		t.Fatalf("expected ~10s until the next token, got %v", wait)
	}

	if ok, _ := th.allow(ip, now.Add(11*time.Second)); !ok {
		t.Fatalf("expected a refilled token after 10s")
	}
}

func TestIPThrottle_KeysAreIndependent(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	th := newIPThrottle(1, time.Minute, 1)

	if ok, _ := th.allow(net.ParseIP("198.51.100.4"), now); !ok {
		t.Fatalf("first ip blocked")
	}
	if ok, _ := th.allow(net.ParseIP("198.51.100.5"), now); !ok {
		t.Fatalf("second ip blocked by first ip's bucket")
	}
	if ok, _ := th.allow(nil, now); !ok {
		t.Fatalf("unknown ip should not be throttled")
	}
}

func TestIPThrottle_SweepsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	th := newIPThrottle(60, time.Minute, 2)

	th.allow(net.ParseIP("198.51.100.4"), now)
	th.allow(net.ParseIP("198.51.100.5"), now)
	if th.size() != 2 {
		t.Fatalf("size=%d, want 2", th.size())
	}

	th.allow(net.ParseIP("198.51.100.6"), now.Add(throttleSweepEvery+time.Second))
	if th.size() != 1 {
		t.Fatalf("idle buckets not swept, size=%d", th.size())
	}
}

func TestIPThrottle_DisabledWhenUnconfigured(t *testing.T) {
	var th *ipThrottle = newIPThrottle(0, time.Minute, 1)
	if ok, _ := th.allow(net.ParseIP("198.51.100.4"), time.Now()); !ok {
		t.Fatalf("nil throttle must allow")
	}
}

func TestWriteRateLimited(t *testing.T) {
	rr := httptest.NewRecorder()
	writeRateLimited(rr, 1500*time.Millisecond)
	if rr.Code != 429 || rr.Header().Get("Retry-After") != "1" {
		t.Fatalf("status=%d retry-after=%q", rr.Code, rr.Header().Get("Retry-After"))
	}

	rr = httptest.NewRecorder()
	writeBusy(rr, 5*time.Second)
	if rr.Code != 503 || rr.Header().Get("Retry-After") != "5" {
		t.Fatalf("status=%d retry-after=%q", rr.Code, rr.Header().Get("Retry-After"))
	}
}
