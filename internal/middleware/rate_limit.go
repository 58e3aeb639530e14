package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const maxTrackedClients = 10000

// RateLimiter 按客户端限流；跟踪的客户端数量由 LRU 限定
type RateLimiter struct {
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	limiters, _ := lru.New[string, *rate.Limiter](maxTrackedClients)
	return &RateLimiter{
		limiters: limiters,
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if l, ok := rl.limiters.Get(key); ok {
		return l
	}
	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters.Add(key, limiter)
	return limiter
}

func (rl *RateLimiter) reject(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":       "rate limit exceeded",
		"retry_after": time.Second.String(),
	})
	c.Abort()
}

func (rl *RateLimiter) RateLimitByIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.getLimiter(c.ClientIP()).Allow() {
			rl.reject(c)
			return
		}
		c.Next()
	}
}

// RateLimitByUser keys on the identity header, falling back to the client IP.
func (rl *RateLimiter) RateLimitByUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderUserID)
		if key == "" {
			key = c.ClientIP()
		}
		if !rl.getLimiter(key).Allow() {
			rl.reject(c)
			return
		}
		c.Next()
	}
}
