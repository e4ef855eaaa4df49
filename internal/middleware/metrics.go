package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-queue-api/internal/service"
)

// unmatchedRoute labels requests that hit no registered route, keeping the
// path label bounded to the route table.
const unmatchedRoute = "unmatched"

// Metrics records request latency per route pattern. Scrapes of skipPaths are not observed.
func Metrics(metricsSvc *service.MetricsService, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, path := range skipPaths {
		skip[path] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if _, ok := skip[route]; ok {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
