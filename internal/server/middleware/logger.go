package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"joule/internal/pkg/ctxutil"
)

// Logger 访问日志中间件
// 认证通过的请求额外记录 user_id
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= 400 {
			event = log.Warn()
		}
		if status >= 500 {
			event = log.Error()
		}

		event = event.
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString("request_id")).
			Int("body_size", c.Writer.Size())
		// 认证中间件在 c.Next() 内替换过 request context
		if userID, ok := ctxutil.GetUserID(c.Request.Context()); ok {
			event = event.Str("user_id", userID)
		}
		event.Msg("HTTP request")
	}
}
