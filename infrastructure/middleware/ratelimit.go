package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apierrors "github.com/skyport-ops/soc-backend/infrastructure/errors"
)

// RateLimiter throttles callers per client IP with a token bucket each,
// since this console has no per-user identity beyond the shared secret
// to key on.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	limit    int
	window   time.Duration
}

// NewRateLimiter builds a limiter allowing limit requests per window,
// with burst as the token bucket's capacity.
func NewRateLimiter(limit int, window time.Duration, burst int) *RateLimiter {
	if window <= 0 {
		window = time.Second
	}
	if limit <= 0 {
		limit = 1
	}
	if burst <= 0 {
		burst = limit
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(limit) / window.Seconds()),
		burst:    burst,
		limit:    limit,
		window:   window,
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = l
	}
	return l
}

// LimiterCount reports the number of distinct client keys currently
// tracked. Used by tests; Cleanup is not called on any schedule by
// this package.
func (rl *RateLimiter) LimiterCount() int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Cleanup drops every tracked limiter once the map grows unbounded
// (long-running consoles with many transient client IPs).
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.limiters) > 10000 {
		rl.limiters = make(map[string]*rate.Limiter)
	}
}

// Handler returns middleware enforcing the per-IP budget, skipping the
// health endpoints so orchestrator liveness checks never 429.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz", "/livez", "/readyz":
			next.ServeHTTP(w, r)
			return
		}

		key := clientIP(r)
		if !rl.limiterFor(key).Allow() {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			writeErrorResponse(w, apierrors.RateLimitExceeded(rl.limit, rl.window.String()))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
