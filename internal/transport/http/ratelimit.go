package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const limiterSweepInterval = 3 * time.Minute

// ipRateLimiter keeps one token bucket per client IP.
type ipRateLimiter struct {
	r   rate.Limit
	b   int
	log *zerolog.Logger

	mu        sync.Mutex
	limits    map[string]*rate.Limiter
	lastSweep time.Time
}

// newIPRateLimiter returns a limiter allowing r requests per second with
// burst b per IP. r <= 0 disables limiting.
func newIPRateLimiter(r rate.Limit, b int, logger *zerolog.Logger) *ipRateLimiter {
	return &ipRateLimiter{
		r:         r,
		b:         b,
		log:       logger,
		limits:    make(map[string]*rate.Limiter),
		lastSweep: time.Now(),
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	if l == nil || l.r <= 0 {
		return true
	}

	now := time.Now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) > limiterSweepInterval {
		l.sweep(now)
	}
	lim, ok := l.limits[ip]
	if !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.limits[ip] = lim
	}
	l.mu.Unlock()

	return lim.AllowN(now, 1)
}

// sweep drops limiters whose bucket has refilled. Caller holds mu.
func (l *ipRateLimiter) sweep(now time.Time) {
	removed := 0
	for ip, lim := range l.limits {
		if lim.TokensAt(now) >= float64(lim.Burst()) {
			delete(l.limits, ip)
			removed++
		}
	}
	l.lastSweep = now
	l.log.Debug().Int("removed", removed).Int("active", len(l.limits)).Msg("rate limiter sweep")
}

// Middleware rejects requests over the limit with 429.
func (l *ipRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown_ip"
		}
		if !l.allow(ip) {
			l.log.Warn().Str("ip", ip).Msg("rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
