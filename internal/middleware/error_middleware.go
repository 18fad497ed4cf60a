package middleware

import (
	"docvault/internal/transport/httpdto"
	"docvault/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler renders the last error a handler attached with c.Error.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status, code := httpdto.ErrorStatus(err)
		if l != nil {
			entry := l.Ctx(c.Request.Context()).With(zap.String("code", code), zap.Int("status", status), zap.Error(err))
			if status >= 500 {
				entry.Error("request error")
			} else {
				entry.Warn("request rejected")
			}
		}
		c.JSON(status, httpdto.NewErrorResponse(err.Error(), code))
	}
}
