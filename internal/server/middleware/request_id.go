package middleware

import (
	"github.com/gin-gonic/gin"

	"joule/internal/pkg/id"
)

const requestIDHeader = "X-Request-ID"

// RequestID 为每个请求分配/透传请求 ID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = id.New()
		}
		c.Set("request_id", requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Next()
	}
}
