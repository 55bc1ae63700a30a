package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/temcen/marketrec/internal/services"
)

// Metrics records request counts and latency per route template.
func Metrics(metrics *services.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
