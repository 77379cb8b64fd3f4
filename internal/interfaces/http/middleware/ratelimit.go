package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cassa/backend/internal/infrastructure/logger"
	"github.com/cassa/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterConfig holds the payment endpoint throttling settings
type RateLimiterConfig struct {
	Requests int           // tokens refilled per Window
	Window   time.Duration // refill window
	Burst    int
	EntryTTL time.Duration // idle limiters are dropped after this
}

// RateLimiter keeps one token bucket per terminal (or client IP when the
// terminal header is missing)
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	entryTTL time.Duration
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.Requests <= 0 {
		cfg.Requests = 20
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Requests
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 10 * time.Minute
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds()),
		burst:    cfg.Burst,
		entryTTL: cfg.EntryTTL,
		now:      time.Now,
	}
}

// Allow reports whether one more request from key may proceed. Idle entries
// are swept on the way.
func (rl *RateLimiter) Allow(key string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for k, e := range rl.limiters {
		if now.Sub(e.lastSeen) > rl.entryTTL {
			delete(rl.limiters, k)
		}
	}

	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)
	return allowed, int(e.limiter.TokensAt(now))
}

// Size returns the number of tracked keys
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// RateLimit returns a rate limiting middleware
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(logger.TerminalIDHeader)
		if key == "" {
			key = c.ClientIP()
		}

		allowed, remaining := limiter.Allow(key)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.burst))
		if !allowed {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRateLimited,
				"Too many payment requests. Please try again shortly.",
				GetRequestID(c),
			))
			return
		}
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Next()
	}
}
