package api

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter is a per-key token bucket. Each key holds up to burst tokens
// and regains them evenly over window, so a client that spent its burst can
// return one request at a time instead of waiting out a whole window.
type RateLimiter struct {
	mu     sync.Mutex
	keys   map[string]*tokens
	burst float64
	every float64 // Seconds to regain one token
	now   func() time.Time

	lastSweep time.Time
}

type tokens struct {
	left float64
	seen time.Time
}

// NewRateLimiter allows burst requests per key, refilled over window.
func NewRateLimiter(burst int, window time.Duration) *RateLimiter {
	burst = max(burst, 1)
	return &RateLimiter{
		keys:  make(map[string]*tokens),
		burst: float64(burst),
		every: window.Seconds() / float64(burst),
		now:   time.Now,
	}
}

// Allow spends one token for key, reporting false when none is left.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)
	t := rl.fill(key, now)
	if t.left < 1 {
		return false
	}
	t.left--
	return true
}

// RetryAfter returns whole seconds until key has a token again.
func (rl *RateLimiter) RetryAfter(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	t := rl.fill(key, rl.now())
	if t.left >= 1 {
		return 0
	}
	return int(math.Ceil((1 - t.left) * rl.every))
}

// fill tops up key's bucket for the time since it was last seen.
func (rl *RateLimiter) fill(key string, now time.Time) *tokens {
	t, ok := rl.keys[key]
	if !ok {
		t = &tokens{left: rl.burst, seen: now}
		rl.keys[key] = t
		return t
	}
	t.left = math.Min(rl.burst, t.left+now.Sub(t.seen).Seconds()/rl.every)
	t.seen = now
	return t
}

// sweep drops buckets that have refilled completely; they hold nothing a
// fresh bucket would not.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < time.Minute {
		return
	}
	rl.lastSweep = now
	for key, t := range rl.keys {
		if t.left+now.Sub(t.seen).Seconds()/rl.every >= rl.burst {
			delete(rl.keys, key)
		}
	}
}

// ClientIP returns the caller's address, preferring the first
// X-Forwarded-For hop for proxied requests.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	addr := r.RemoteAddr
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		addr = addr[:i]
	}
	return addr
}

// RateLimitMiddleware answers 429 with Retry-After once the caller's bucket
// is empty.
func RateLimitMiddleware(rl *RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := ClientIP(r)
		if !rl.Allow(key) {
			w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter(key)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
