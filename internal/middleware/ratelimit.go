package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loocate/loocate/internal/errors"
	"github.com/loocate/loocate/internal/telemetry"
)

// RateLimiter represents a simple token bucket rate limiter
type RateLimiter struct {
	tokens     int
	maxTokens  int
	lastRefill time.Time
	lastSeen   time.Time
	refillRate time.Duration
	mu         sync.Mutex
}

// NewRateLimiter creates a bucket holding maxTokens that regains one token
// every refillRate.
func NewRateLimiter(maxTokens int, refillRate time.Duration, now time.Time) *RateLimiter {
	return &RateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		lastRefill: now,
		lastSeen:   now,
		refillRate: refillRate,
	}
}

// Allow takes a token if one is available.
func (rl *RateLimiter) Allow(now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lastSeen = now
	elapsed := now.Sub(rl.lastRefill)
	if rl.refillRate > 0 && elapsed >= rl.refillRate {
		tokensToAdd := int(elapsed / rl.refillRate)
		rl.tokens = min(rl.maxTokens, rl.tokens+tokensToAdd)
		rl.lastRefill = rl.lastRefill.Add(time.Duration(tokensToAdd) * rl.refillRate)
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

func (rl *RateLimiter) idleSince(now time.Time) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return now.Sub(rl.lastSeen)
}

// RateLimitMiddleware limits requests per client IP.
type RateLimitMiddleware struct {
	limiters map[string]*RateLimiter
	mu       sync.RWMutex
	requests int
	window   time.Duration
	now      func() time.Time
}

// NewRateLimitMiddleware allows each client requests per window, with
// bursts up to requests.
func NewRateLimitMiddleware(requests int, window time.Duration) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiters: make(map[string]*RateLimiter),
		requests: requests,
		window:   window,
		now:      time.Now,
	}
}

// Middleware returns the gin handler. A non-positive request budget
// disables limiting.
func (m *RateLimitMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.requests <= 0 {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		if !m.getLimiter(clientIP).Allow(m.now()) {
			telemetry.GetContextualLogger(c.Request.Context()).WithFields(map[string]interface{}{
				"operation": "rate_limit",
				"service":   "middleware",
				"client_ip": clientIP,
			}).Warn("Rate limit exceeded")

			c.Header("Retry-After", strconv.Itoa(int(m.refillRate().Seconds())+1))
			HandleError(c, errors.NewRateLimitError(m.requests, m.window.String()))
			return
		}

		c.Next()
	}
}

func (m *RateLimitMiddleware) refillRate() time.Duration {
	return m.window / time.Duration(m.requests)
}

// getLimiter gets or creates the bucket for a client
func (m *RateLimitMiddleware) getLimiter(key string) *RateLimiter {
	m.mu.RLock()
	limiter, exists := m.limiters[key]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if limiter, exists = m.limiters[key]; !exists {
			limiter = NewRateLimiter(m.requests, m.refillRate(), m.now())
			m.limiters[key] = limiter
		}
		m.mu.Unlock()
	}

	return limiter
}

// Cleanup drops buckets idle for longer than maxIdle.
func (m *RateLimitMiddleware) Cleanup(maxIdle time.Duration) int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, limiter := range m.limiters {
		if limiter.idleSince(now) > maxIdle {
			delete(m.limiters, key)
			removed++
		}
	}
	return removed
}
