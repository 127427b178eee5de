// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an in-memory token-bucket rate limiter with one bucket
// per caller. Authenticated requests are keyed by user so that several people
// behind one NAT do not share a bucket; anonymous requests (register, login,
// proxy) are keyed by client IP. Each exchange costs a completion call, so
// the limiter doubles as cost protection.
//
// The limiter is process-local. Idle buckets are evicted opportunistically.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP prefers the user recorded by Identify and falls back to the
// client IP. Keys are namespaced ("user:<id>", "ip:<addr>").
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid := c.GetString(ctxKeyUserID); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements a per-key token-bucket rate limiter. It is safe for
// concurrent use.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewRateLimiter constructs a RateLimiter refilling rps tokens per second up
// to burst. rps <= 0 disables limiting; burst <= 0 is coerced to 1.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = KeyByUserOrIP()
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// getVisitor returns the limiter for key, creating it if absent. Every 5000
// lookups idle buckets are evicted, before the requested one is refreshed.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay, which is served without consuming tokens.
func IsRateBypass(c *gin.Context) bool {
	return c.GetBool(ctxKeyRateBypass)
}

// Handler returns the Gin middleware. Rejected requests get 429 with a
// Retry-After header rounded up to whole seconds.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rps <= 0 || IsRateBypass(c) {
			c.Next()
			return
		}

		res := rl.getVisitor(rl.keyFn(c)).Reserve()
		delay := res.Delay()
		if res.OK() && delay == 0 {
			c.Next()
			return
		}
		res.Cancel()

		wait := 1
		if res.OK() && delay != rate.InfDuration {
			wait = max(1, int(math.Ceil(delay.Seconds())))
		}
		c.Header("Retry-After", strconv.Itoa(wait))
		abortError(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
	}
}
