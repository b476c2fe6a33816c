package handlers

import (
	"net/http"
	"os"
	"strconv"

	"github.com/KiiTuNp/SUPERvote/cache"

	"github.com/gin-gonic/gin"
)

// 限流默认值
const (
	defaultGlobalRate  = 200
	defaultGlobalBurst = 400
	defaultClientRate  = 20
	defaultClientBurst = 40
)

// RateLimitMiddleware 按客户端IP的限流中间件
// Redis可用时限流对整个集群生效，否则退化为单实例进程内限流
func RateLimitMiddleware() gin.HandlerFunc {
	limiter := cache.NewClientRateLimiter("api",
		envInt("RATE_LIMIT_GLOBAL", defaultGlobalRate),
		envInt("RATE_LIMIT_GLOBAL_BURST", defaultGlobalBurst),
		envInt("RATE_LIMIT_CLIENT", defaultClientRate),
		envInt("RATE_LIMIT_CLIENT_BURST", defaultClientBurst),
	)

	return func(c *gin.Context) {
		if !limiter.Allow(c.Request.Context(), c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁，请稍后再试"})
			return
		}
		c.Next()
	}
}

func envInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
