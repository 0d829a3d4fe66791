package middleware

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/securekit/secure-session-service/internal/http/response"
	"github.com/securekit/secure-session-service/internal/observability"
)

// RateLimiter is a fixed-window per-key limiter. Scope only labels the
// metrics; keys default to client IP.
type RateLimiter struct {
	limit   int
	window  time.Duration
	scope   string
	keyFunc func(r *http.Request) string

	mu      sync.Mutex
	hits    map[string][]time.Time
	cleanup time.Time
	now     func() time.Time
}

func NewRateLimiter(limit int, window time.Duration, scope string) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if scope == "" {
		scope = "api"
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		scope:   scope,
		keyFunc: clientIPKey,
		hits:    make(map[string][]time.Time),
		cleanup: time.Now().Add(window),
		now:     time.Now,
	}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.keyFunc(r)
			allowed, retryAfter := rl.allow(key)
			if !allowed {
				observability.RecordRateLimitDecision(r.Context(), rl.scope, "deny")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Round(time.Second).Seconds())+1))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			observability.RecordRateLimitDecision(r.Context(), rl.scope, "allow")
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) allow(key string) (bool, time.Duration) {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.After(rl.cleanup) {
		cutoff := now.Add(-rl.window)
		for k, v := range rl.hits {
			if len(v) == 0 || !v[len(v)-1].After(cutoff) {
				delete(rl.hits, k)
			}
		}
		rl.cleanup = now.Add(rl.window)
	}

	cutoff := now.Add(-rl.window)
	pruned := rl.hits[key][:0]
	for _, hit := range rl.hits[key] {
		if hit.After(cutoff) {
			pruned = append(pruned, hit)
		}
	}
	if len(pruned) >= rl.limit {
		rl.hits[key] = pruned
		return false, pruned[0].Add(rl.window).Sub(now)
	}
	rl.hits[key] = append(pruned, now)
	return true, 0
}

func clientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
