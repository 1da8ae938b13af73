package logging

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestLogger tags each request with an id and logs one line when it
// finishes. Errors attached with c.Error are logged at error level.
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Header(RequestIDHeader, rid)

		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"request_id": rid,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Error("request failed")
			return
		}
		entry.Info("request")
	}
}

// RequestID returns the id RequestLogger assigned, if any.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
