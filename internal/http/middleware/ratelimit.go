// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the per-identity token-bucket limiter. The router
// mounts two: a strict per-IP bucket on the public /auth endpoints, where
// each request may email a link, and a per-user bucket on the authenticated
// API. Buckets live in process memory and idle ones are evicted
// opportunistically. Idempotent replays flagged by Idempotency are
// served without spending a token.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	// defaultBucketTTL is how long an idle bucket is kept.
	defaultBucketTTL = 10 * time.Minute
	// sweepEvery is the number of lookups between eviction sweeps.
	sweepEvery = 5000
)

// KeyFunc selects the identity used to key a rate-limit bucket, e.g.
// "user:<id>" or "auth:ip:<addr>". The text before the first colon is the
// scope label of the rejection counter.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP prefers the user set by RequireAuth and falls back to the
// client IP.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if uid := userIDFromCtx(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

// KeyByIP keys buckets by client IP under namespace.
func KeyByIP(namespace string) KeyFunc {
	return func(c *gin.Context) string {
		return namespace + ":ip:" + c.ClientIP()
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a set of token buckets keyed by KeyFunc. It is safe for
// concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn KeyFunc
	clock clockwork.Clock
	ttl   time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups uint64
}

// NewRateLimiter returns a limiter refilling rps tokens per second up to
// burst (at least 1). An rps of 0 admits only the initial burst.
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		clock:   clockwork.NewRealClock(),
		ttl:     defaultBucketTTL,
		buckets: make(map[string]*bucket),
	}
}

// bucketFor returns the limiter for key, creating it when absent. Every
// sweepEvery lookups, buckets idle for ttl are dropped first so a stale
// bucket is never refreshed by the lookup that should evict it.
func (rl *RateLimiter) bucketFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= sweepEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.buckets[key] = &bucket{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether Idempotency marked the request as a
// replay.
func IsRateBypass(c *gin.Context) bool {
	b, _ := c.Get(ctxKeyRateBypass)
	v, _ := b.(bool)
	return v
}

// Handler enforces the limit. Rejected requests get 429 with the standard
// error envelope and a Retry-After of the seconds until a token is due.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		key := rl.keyFn(c)
		now := rl.clock.Now()
		lim := rl.bucketFor(key, now)

		if lim.AllowN(now, 1) {
			c.Next()
			return
		}

		scope, _, _ := strings.Cut(key, ":")
		rateLimited.WithLabelValues(scope).Inc()
		c.Header("Retry-After", strconv.Itoa(retryAfter(lim, now)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}

// retryAfter is the whole seconds until lim can grant one token, at least 1.
func retryAfter(lim *rate.Limiter, now time.Time) int {
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return 1
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
