// Package ratelimit throttles clients by IP with token buckets.
package ratelimit

import (
	"strconv"
	"sync"
	"time"

	"swarmgate/internal/apierr"
	"swarmgate/internal/config"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// idleTTL is how long an unused bucket is kept before it is swept.
const idleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out one token bucket per client key.
type Limiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// New creates a Limiter allowing cfg.PerMinute requests per minute per
// client with bursts of cfg.Burst.
func New(cfg config.RateLimitConfig) *Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.PerMinute
	}
	return &Limiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(cfg.PerMinute) / 60),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether key may make a request now.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > idleTTL {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > idleTTL {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the limit with 429.
func (l *Limiter) Middleware() gin.HandlerFunc {
	retryAfter := "60"
	if l.limit > 0 {
		retryAfter = strconv.Itoa(int(time.Duration(float64(time.Second)/float64(l.limit)).Seconds() + 0.5))
	}
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", retryAfter)
			apierr.Respond(c, apierr.New(apierr.KindRateLimited, apierr.ReasonRateLimited, "Too many requests. Please wait a moment."))
			return
		}
		c.Next()
	}
}
