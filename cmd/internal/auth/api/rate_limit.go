package authapi

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const throttleSweepEvery = 5 * time.Minute

// ipThrottle keeps one token bucket per client IP.
type ipThrottle struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	buckets   map[string]*rate.Limiter
	lastSweep time.Time
}

func newIPThrottle(perWindow int, window time.Duration, burst int) *ipThrottle {
	if perWindow <= 0 || window <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &ipThrottle{
		limit:   rate.Limit(float64(perWindow) / window.Seconds()),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

// allow takes a token for ip at now. When the bucket is empty it returns the
// wait until the next token.
func (t *ipThrottle) allow(ip net.IP, now time.Time) (bool, time.Duration) {
	if t == nil || ip == nil {
		return true, 0
	}
	key := ip.String()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.sweepLocked(now)
	lim, ok := t.buckets[key]
	if !ok {
		lim = rate.NewLimiter(t.limit, t.burst)
		t.buckets[key] = lim
	}
	if lim.AllowN(now, 1) {
		return true, 0
	}
	r := lim.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return false, wait
}

// sweepLocked drops buckets that have refilled, i.e. idle clients.
func (t *ipThrottle) sweepLocked(now time.Time) {
	if now.Sub(t.lastSweep) < throttleSweepEvery {
		return
	}
	t.lastSweep = now
	for k, lim := range t.buckets {
		if lim.TokensAt(now) >= float64(t.burst) {
			delete(t.buckets, k)
		}
	}
}

func (t *ipThrottle) size() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := max(int64(retryAfter.Seconds()), 1)
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}

// writeBusy answers a request that gave up waiting for a contended resource.
func writeBusy(w http.ResponseWriter, waited time.Duration) {
	secs := max(int64(waited.Seconds()), 1)
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	writeError(w, http.StatusServiceUnavailable, "busy", "resource busy, retry later")
}
