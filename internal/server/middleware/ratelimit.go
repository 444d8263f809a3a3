package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"joule/internal/pkg/cache"
	"joule/internal/pkg/ctxutil"
)

// IPRateLimit 按客户端 IP 的固定窗口限流
// 缓存不可用时放行（限流是保护措施，不能成为单点故障）
func IPRateLimit(store cache.Store, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := cache.RateLimitKey(c.ClientIP())

		current, err := store.Get(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, cache.ErrMiss) {
				// 窗口首个请求
				if err := store.Set(c.Request.Context(), key, "1", window); err != nil {
					log.Warn().Err(err).Msg("rate limit window init failed, admitting")
				}
				c.Next()
				return
			}
			log.Warn().Err(err).Msg("rate limit check failed, admitting")
			c.Next()
			return
		}

		count, err := strconv.ParseInt(current, 10, 64)
		if err != nil {
			log.Warn().Str("value", current).Msg("rate limit counter unreadable, admitting")
			c.Next()
			return
		}

		if count >= int64(maxRequests) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    42901,
				"message": "Rate limit exceeded. Please try again later.",
			})
			return
		}

		if _, err := store.Increment(c.Request.Context(), key); err != nil {
			log.Warn().Err(err).Msg("rate limit increment failed")
		}
		c.Next()
	}
}

// UserRateLimit 按认证用户+端点的固定窗口限流
// 必须挂在 Auth 之后；缓存不可用时放行
func UserRateLimit(store cache.Store, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := ctxutil.GetUserID(c.Request.Context())
		if !ok {
			c.Next()
			return
		}

		key := cache.UsageKey(userID, c.FullPath())
		count, err := store.Increment(c.Request.Context(), key)
		if err != nil {
			log.Warn().Err(err).Msg("usage counter increment failed, admitting")
			c.Next()
			return
		}
		if count == 1 {
			if err := store.Expire(c.Request.Context(), key, window); err != nil {
				log.Warn().Err(err).Msg("usage counter expire failed")
			}
		}

		if count > int64(maxRequests) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    42902,
				"message": "Usage quota exceeded. Please try again later.",
			})
			return
		}
		c.Next()
	}
}
