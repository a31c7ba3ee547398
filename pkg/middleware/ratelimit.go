package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/openbio/openbio/pkg/config"
)

// RateLimiter keeps one token bucket per client key
type RateLimiter struct {
	config config.RateLimitConfig
	logger *zap.Logger

	mu       sync.Mutex
	limiters map[string]*clientLimiter

	stop     chan struct{}
	stopOnce sync.Once
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop.
// Call Stop to end the loop.
func NewRateLimiter(cfg config.RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	if cfg.BurstSize < 1 {
		cfg.BurstSize = 1
	}

	rl := &RateLimiter{
		config:   cfg,
		logger:   logger.Named("ratelimit"),
		limiters: make(map[string]*clientLimiter),
		stop:     make(chan struct{}),
	}
	if cfg.Enabled {
		go rl.cleanupLoop()
	}
	return rl
}

// Allow reports whether a request for key may proceed
func (r *RateLimiter) Allow(key string) bool {
	if !r.config.Enabled {
		return true
	}
	return r.get(key).Allow()
}

func (r *RateLimiter) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	cl, ok := r.limiters[key]
	if !ok {
		limit := rate.Limit(float64(r.config.RequestsPerMinute) / 60.0)
		cl = &clientLimiter{limiter: rate.NewLimiter(limit, r.config.BurstSize)}
		r.limiters[key] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter
}

func (r *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.cleanup(time.Now().Add(-r.config.CleanupInterval))
		}
	}
}

// cleanup drops limiters not used since cutoff
func (r *RateLimiter) cleanup(cutoff time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, cl := range r.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(r.limiters, key)
		}
	}
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// RateLimitMiddleware rejects requests over the limit with 429, keyed by client IP
func RateLimitMiddleware(rl *RateLimiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if !rl.Allow(key) {
			logger.Warn("Rate limit exceeded",
				zap.String("client", key),
				zap.String("path", c.FullPath()))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests. Please try again later.",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
