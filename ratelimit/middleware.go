package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinMiddleware 创建 Gin 限流中间件
// 被限流的请求返回 429，并携带 Retry-After 响应头
//
// 使用示例:
//
//	limiter, _ := ratelimit.New(ratelimit.UserRequestLimit())
//	r := gin.New()
//	r.Use(ratelimit.GinMiddleware(limiter))
func GinMiddleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		if err := limiter.TryAcquire(1); err != nil {
			var exceeded *Exceeded
			if errors.As(err, &exceeded) {
				seconds := int(math.Ceil(exceeded.RetryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				c.Header("Retry-After", fmt.Sprintf("%d", seconds))
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"error":       "rate limit exceeded",
					"retry_after": seconds,
				})
				return
			}
			// 参数类错误不应拦截业务请求
			c.Next()
			return
		}

		c.Next()
	}
}

// GinMiddlewarePerKey 创建按键区分的 Gin 限流中间件
// 每个键（如用户 ID、客户端 IP）对应一个独立的限流器
//
// 参数:
//   - limiters: 按键获取限流器的函数，返回 nil 时放行
//   - keyFunc: 从请求中提取键的函数，如果为 nil，默认使用客户端 IP
//
// 使用示例:
//
//	group := ratelimit.NewGroup(ratelimit.UserRequestLimit())
//	r.Use(ratelimit.GinMiddlewarePerKey(group.Get, nil))
func GinMiddlewarePerKey(
	limiters func(key string) Limiter,
	keyFunc func(*gin.Context) string,
) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = func(c *gin.Context) string {
			return c.ClientIP()
		}
	}

	return func(c *gin.Context) {
		key := keyFunc(c)
		if key == "" {
			c.Next()
			return
		}

		limiter := limiters(key)
		if limiter == nil {
			c.Next()
			return
		}

		GinMiddleware(limiter)(c)
	}
}
