package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/replaykit/recorderd/internal/shared/id"
)

// HeaderRequestID carries the request correlation ID.
const HeaderRequestID = "X-Request-ID"

// RequestID propagates the caller's correlation ID, or assigns one, so
// control API calls can be matched against session log entries.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if rid == "" {
			rid = id.Default().GenerateWithPrefix("req")
		}
		c.Set("request_id", rid)
		c.Header(HeaderRequestID, rid)
		c.Next()
	}
}
