package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"parkcore/pkg/logger"
)

const HeaderRequestID = "X-Request-ID"

// Trace middleware assigns each request an id and binds a request-scoped
// logger so every log line downstream carries it.
func Trace(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := logger.WithLogger(c.Request.Context(), log.With("request_id", requestID))
		c.Request = c.Request.WithContext(ctx)

		c.Set("request_id", requestID)
		c.Header(HeaderRequestID, requestID)

		c.Next()
	}
}
