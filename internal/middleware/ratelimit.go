package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// AddressLimiter hands out one token bucket per client address and forgets
// addresses that have been quiet for a while.
type AddressLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu       sync.Mutex
	visitors map[string]*visitor
	lastGC   time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewAddressLimiter allows perMinute requests per address with a burst of
// a fifth of that (at least 1).
func NewAddressLimiter(perMinute int) *AddressLimiter {
	burst := perMinute / 5
	if burst < 1 {
		burst = 1
	}
	return &AddressLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		visitors: make(map[string]*visitor),
	}
}

// Allow reports whether addr may make another request now
func (l *AddressLimiter) Allow(addr string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastGC) > l.idleTTL {
		for a, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.idleTTL {
				delete(l.visitors, a)
			}
		}
		l.lastGC = now
	}

	v, ok := l.visitors[addr]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[addr] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// RateLimitByAddress throttles requests per client IP. A non-positive
// perMinute disables the limit.
func RateLimitByAddress(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := NewAddressLimiter(perMinute)
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			log.Info().Str("module", "ratelimit").Str("ip", c.ClientIP()).Str("path", c.FullPath()).Msg("request throttled")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests", "code": "rate_limited"})
			return
		}
		c.Next()
	}
}
