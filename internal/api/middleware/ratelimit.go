package middleware

import (
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/qs3c/pulse_server/config"
	"github.com/qs3c/pulse_server/internal/pkg/response"
)

const defaultLimiterEntries = 10000

// RateLimiter 按用户或 IP 限流，登录用户以用户 ID 计
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	limiters, _ := lru.New[string, *rate.Limiter](defaultLimiterEntries)
	return &RateLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: limiters,
	}
}

func (l *RateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters.Get(key); ok {
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.limiters.Add(key, lim)
	return lim
}

// Middleware 超出配额返回 429，需挂在 Auth/OptionalAuth 之后
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if userID, ok := GetUserID(c); ok && userID > 0 {
			key = "user:" + strconv.FormatInt(userID, 10)
		}

		if !l.limiter(key).Allow() {
			response.Abort(c, response.CodeRateLimited, "")
			return
		}
		c.Next()
	}
}
