package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const requestStartKey = "request_start"

// WithResponseMeta records the request start so handlers can report processing time.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(requestStartKey, time.Now())
		c.Next()
	}
}

// ResponseMeta builds the envelope meta for the current request. It returns nil
// when WithResponseMeta did not run.
func ResponseMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	raw, exists := c.Get(requestStartKey)
	if !exists {
		return nil
	}
	start, ok := raw.(time.Time)
	if !ok {
		return nil
	}
	meta := map[string]interface{}{
		"processing_time_ms": time.Since(start).Milliseconds(),
	}
	if school := SchoolID(c); school != "" {
		meta["school_id"] = school
	}
	return meta
}
