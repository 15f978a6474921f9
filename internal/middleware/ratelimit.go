package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type keyLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter is a token bucket per client IP. Idle buckets are dropped
// after ttl by a background sweeper that stops with the context passed to
// NewRateLimiter.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*keyLimiter
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time

	// OnReject, when set, is called for every rejected request.
	OnReject func(r *http.Request)
}

func NewRateLimiter(ctx context.Context, perSecond float64, burst int, ttl time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*keyLimiter),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
	go rl.sweep(ctx)
	return rl
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	if kl, ok := rl.buckets[key]; ok {
		kl.seen = now
		return kl.lim
	}
	lim := rate.NewLimiter(rl.limit, rl.burst)
	rl.buckets[key] = &keyLimiter{lim: lim, seen: now}
	return lim
}

func (rl *RateLimiter) sweep(ctx context.Context) {
	interval := rl.ttl / 2
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

func (rl *RateLimiter) evictIdle() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, kl := range rl.buckets {
		if now.Sub(kl.seen) > rl.ttl {
			delete(rl.buckets, key)
		}
	}
}

// Handler answers 429 once the caller's bucket is empty. The key is the
// client IP plus the request path.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r.RemoteAddr) + "|" + r.URL.Path
		if !rl.limiter(key).Allow() {
			if rl.OnReject != nil {
				rl.OnReject(r)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}
