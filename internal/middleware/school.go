package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/lesson-queue-api/pkg/errors"
	"github.com/noah-isme/lesson-queue-api/pkg/logger"
	"github.com/noah-isme/lesson-queue-api/pkg/response"
)

// SchoolHeader carries the tenant of the request, set by the upstream gateway.
const SchoolHeader = "X-School-ID"

const maxSchoolIDLength = 64

// School requires the school header and stores it in the gin context under logger.SchoolKey.
func School() gin.HandlerFunc {
	return func(c *gin.Context) {
		schoolID := strings.TrimSpace(c.GetHeader(SchoolHeader))
		if schoolID == "" || len(schoolID) > maxSchoolIDLength {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "missing or invalid "+SchoolHeader+" header"))
			c.Abort()
			return
		}
		c.Set(logger.SchoolKey, schoolID)
		c.Next()
	}
}

// SchoolID returns the school stored by School.
func SchoolID(c *gin.Context) string {
	return c.GetString(logger.SchoolKey)
}
