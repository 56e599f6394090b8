package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go/log"

	"github.com/customeros/mailvault/internal/tracing"
)

// TracingMiddleware creates a new span for each request and adds common tags
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Start span using existing utility
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(
			c.Request.Context(),
			c.Request.Method+" "+c.FullPath(),
			c.Request.Header,
		)
		defer span.Finish()

		// Tag as REST component
		tracing.TagComponentRest(span)

		// Set default span tags (app source, request id)
		tracing.SetDefaultRestSpanTags(ctx, span)

		// Add account ID if present in URL params
		if id := c.Param("id"); id != "" {
			tracing.TagAccount(span, id)
		}

		// Store span in context
		c.Request = c.Request.WithContext(ctx)

		// Process request
		c.Next()

		// Add response status
		if status := c.Writer.Status(); status >= 400 {
			span.SetTag("error", true)
			span.LogFields(log.Int("http.status_code", status))
		}
	}
}
