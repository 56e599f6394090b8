package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request id in both directions: callers may
// supply their own, otherwise one is generated.
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware ensures every request has an id for log and trace
// correlation. The id is echoed on the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.New().String()
		}

		// Store in gin context for later use
		c.Set("RequestId", requestID)
		c.Writer.Header().Set(RequestIDHeader, requestID)
		c.Next()
	}
}
