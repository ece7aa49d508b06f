package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/realmauth/errors"
	"github.com/kbukum/realmauth/logger"
	"github.com/kbukum/realmauth/resilience"
)

// idleLimiterTTL is how long an unused per-key bucket is kept.
const idleLimiterTTL = 5 * time.Minute

// RateLimitConfig configures the rate limiting middleware.
type RateLimitConfig struct {
	// Name labels the limiter in logs.
	Name string
	// RequestsPerMinute is the sustained rate allowed per key.
	RequestsPerMinute int
	// Burst is the bucket size. Defaults to RequestsPerMinute.
	Burst int
	// KeyFunc extracts the rate limit key from a request. Defaults to client IP.
	KeyFunc func(*gin.Context) string
	// Logger receives a warning for every refused request.
	Logger *logger.Logger
	// Now is the clock used for idle-bucket eviction. Defaults to time.Now.
	Now func() time.Time
}

// RateLimit applies a token bucket per key. Refused requests get a
// RATE_LIMITED body with status 429.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerMinute
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPBasedKey
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Name == "" {
		cfg.Name = "http"
	}
	log := logger.OrNop(cfg.Logger).WithComponent("ratelimit")

	kl := &keyedLimiter{
		limiters: make(map[string]*keyedEntry),
		config: resilience.RateLimiterConfig{
			Name:  cfg.Name,
			Rate:  float64(cfg.RequestsPerMinute) / 60,
			Burst: cfg.Burst,
			OnLimit: func(name string) {
				log.Warn("Rate limit exceeded", logger.Fields("limiter", name))
			},
		},
		now: cfg.Now,
	}

	return func(c *gin.Context) {
		if !kl.allow(cfg.KeyFunc(c)) {
			appErr := apperrors.RateLimited()
			c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.ToResponse())
			return
		}
		c.Next()
	}
}

// IPBasedKey extracts the client IP for use as a rate limit key.
func IPBasedKey(c *gin.Context) string {
	return c.ClientIP()
}

type keyedEntry struct {
	limiter  *resilience.RateLimiter
	lastSeen time.Time
}

// keyedLimiter holds one resilience.RateLimiter per key and evicts idle
// ones lazily on access.
type keyedLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*keyedEntry
	config    resilience.RateLimiterConfig
	now       func() time.Time
	lastSweep time.Time
}

func (kl *keyedLimiter) allow(key string) bool {
	kl.mu.Lock()
	now := kl.now()
	if now.Sub(kl.lastSweep) >= idleLimiterTTL {
		for k, e := range kl.limiters {
			if now.Sub(e.lastSeen) >= idleLimiterTTL {
				delete(kl.limiters, k)
			}
		}
		kl.lastSweep = now
	}
	e, ok := kl.limiters[key]
	if !ok {
		e = &keyedEntry{limiter: resilience.NewRateLimiter(kl.config)}
		kl.limiters[key] = e
	}
	e.lastSeen = now
	kl.mu.Unlock()

	return e.limiter.Allow()
}

func (kl *keyedLimiter) size() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.limiters)
}
