package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/use-agent/shopscrape/config"
	"github.com/use-agent/shopscrape/models"
	"golang.org/x/time/rate"
)

const (
	maxIdentities = 10000
	identityIdle  = time.Hour
)

// RateLimit returns per-identity (API key or IP) token-bucket rate limiting
// middleware powered by golang.org/x/time/rate.
//
// Limiters live in an expiring LRU: identities idle for an hour are
// dropped, and at most maxIdentities are tracked at once.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	limiters := newLimiterSet(cfg)
	getLimiter := limiters.get

	return func(c *gin.Context) {
		// Prefer API key as identity (set by auth middleware); fall back to IP.
		identity := c.ClientIP()
		if key, ok := c.Get(APIKeyContextKey); ok {
			identity = key.(string)
		}

		limiter := getLimiter(identity)
		if !limiter.Allow() {
			c.Header("Retry-After", retryAfter(limiter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "rate limit exceeded, please slow down",
				},
			})
			return
		}

		c.Next()
	}
}

// retryAfter returns the whole seconds until one token is available.
func retryAfter(l *rate.Limiter) string {
	if l.Limit() <= 0 {
		return "60"
	}
	secs := math.Ceil(1 / float64(l.Limit()))
	return strconv.Itoa(max(1, int(secs)))
}

// limiterSet hands out one limiter per identity.
type limiterSet struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

func newLimiterSet(cfg config.RateLimitConfig) *limiterSet {
	return &limiterSet{
		limiters: expirable.NewLRU[string, *rate.Limiter](maxIdentities, nil, identityIdle),
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.Burst,
	}
}

// get returns the limiter for identity, creating it on first use. The
// lookup and insert happen under one lock so concurrent first requests
// share a bucket.
func (s *limiterSet) get(identity string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters.Get(identity)
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
	}
	// Re-adding refreshes the idle timer.
	s.limiters.Add(identity, l)
	return l
}
