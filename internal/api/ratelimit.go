package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/evscmms/assistant/internal/log"
)

// limiterIdleTTL is how long a client bucket survives without traffic
// before a sweep reclaims it.
const limiterIdleTTL = 15 * time.Minute

// sweepEvery triggers a reclaim pass after this many admissions, so
// sweep cost is amortized across requests instead of running on a
// clock.
const sweepEvery = 1 << 10

// throttle hands out one token bucket per client IP.
type throttle struct {
	mu         sync.Mutex
	buckets    map[string]*clientBucket
	refill     rate.Limit
	burst      int
	admissions int
	now        func() time.Time
}

type clientBucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter builds a throttle refilling r tokens per second per
// client, with the given burst.
func newRateLimiter(r float64, burst int) *throttle {
	return &throttle{
		buckets: make(map[string]*clientBucket),
		refill:  rate.Limit(r),
		burst:   burst,
		now:     time.Now,
	}
}

func (t *throttle) allow(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.admissions++
	if t.admissions >= sweepEvery {
		t.sweepLocked(now)
		t.admissions = 0
	}

	b := t.buckets[ip]
	if b == nil {
		b = &clientBucket{tokens: rate.NewLimiter(t.refill, t.burst)}
		t.buckets[ip] = b
	}
	b.lastSeen = now
	return b.tokens.Allow()
}

func (t *throttle) sweepLocked(now time.Time) {
	cutoff := now.Add(-limiterIdleTTL)
	for ip, b := range t.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(t.buckets, ip)
		}
	}
}

func rateLimitMiddleware(t *throttle, trustProxy bool, logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustProxy)
			if !t.allow(ip) {
				logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP picks the throttle key for a request. Proxy headers count
// only when the server is deliberately deployed behind one, and a
// header value becomes a key only if it parses as an IP.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, header := range []string{"X-Real-IP", "X-Forwarded-For"} {
			raw := r.Header.Get(header)
			if raw == "" {
				continue
			}
			// X-Forwarded-For lists hops; the first entry is the client.
			if first, _, ok := strings.Cut(raw, ","); ok {
				raw = first
			}
			if ip := net.ParseIP(strings.TrimSpace(raw)); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
