package httpmiddleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"invigilation/internal/logger"
)

// RequestIDHeader carries the correlation id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns a request id and logs server errors against it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)

		c.Next()

		if c.Writer.Status() >= 500 {
			logger.Error().
				Str("request_id", id).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Int("status", c.Writer.Status()).
				Strs("errors", c.Errors.Errors()).
				Msg("request failed")
		}
	}
}
