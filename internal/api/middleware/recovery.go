package middleware

import (
	"errors"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/replay-ingest/internal/logger"
	"github.com/myysophia/replay-ingest/internal/utils"
	"go.uber.org/zap"
)

// RecoveryMiddleware 错误恢复中间件
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("服务发生panic",
					zap.Any("error", err),
					zap.String("stack", string(debug.Stack())),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
					zap.String("ip", c.ClientIP()),
				)

				utils.ResponseError(c, utils.CodeInternalError, errors.New("服务器内部错误"))
				c.Abort()
			}
		}()
		c.Next()
	}
}
