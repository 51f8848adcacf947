package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"timetracker/internal/logging"
)

// RequestLogger logs method, path, status and latency for every request.
func RequestLogger(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Infof("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
