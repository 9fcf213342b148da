package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/prometheus"
)

// Metrics records request counts and latencies labelled by route template,
// so /api/v1/generalizations/:id stays one series.
func Metrics(m *prometheus.AppMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		prometheus.RecordHTTPRequest(m, c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
