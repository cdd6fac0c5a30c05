package utils

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleTTL is how long an unused client bucket is kept. It must exceed the
// time a bucket takes to refill.
const idleTTL = 3 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client address
type IPRateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*clientBucket
	limit      rate.Limit
	burst      int
	perMin     int
	trustProxy bool
	now        func() time.Time
	lastSweep  time.Time
}

// NewIPRateLimiter allows perMinute requests per client per minute.
// With trustProxy the client is taken from X-Forwarded-For or X-Real-IP;
// enable it only behind a proxy that overwrites those headers.
func NewIPRateLimiter(perMinute int, trustProxy bool) *IPRateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &IPRateLimiter{
		limiters:   make(map[string]*clientBucket),
		limit:      rate.Limit(float64(perMinute) / 60.0),
		burst:      perMinute,
		perMin:     perMinute,
		trustProxy: trustProxy,
		now:        time.Now,
	}
}

func (rl *IPRateLimiter) limiterFor(ip string) (*rate.Limiter, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= idleTTL {
		rl.evictIdle(now)
		rl.lastSweep = now
	}

	b, ok := rl.limiters[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = b
	}
	b.lastSeen = now
	return b.limiter, now
}

// evictIdle must be called with mu held
func (rl *IPRateLimiter) evictIdle(now time.Time) {
	for ip, b := range rl.limiters {
		if now.Sub(b.lastSeen) >= idleTTL {
			delete(rl.limiters, ip)
		}
	}
}

// Allow checks if a request from ip is allowed under the rate limit
func (rl *IPRateLimiter) Allow(ip string) bool {
	lim, now := rl.limiterFor(ip)
	return lim.AllowN(now, 1)
}

// Len reports the number of tracked clients
func (rl *IPRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *IPRateLimiter) clientOf(r *http.Request) string {
	if rl.trustProxy {
		return ClientIP(r)
	}
	return PeerIP(r)
}

// Limit wraps a single handler with the per-client limit
func (rl *IPRateLimiter) Limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(rl.clientOf(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Minute.Seconds())))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.perMin))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"Too many requests. Please retry later."}`))
			return
		}
		next(w, r)
	}
}

// ClientIP returns the first forwarded address or the peer host. The
// forwarding headers are client-controlled unless a proxy rewrites them.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return PeerIP(r)
}

// PeerIP returns the host of the connection's remote address
func PeerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
