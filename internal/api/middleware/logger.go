package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/replay-ingest/internal/logger"
	"go.uber.org/zap"
)

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.String("user-agent", c.Request.UserAgent()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		if operator, exists := c.Get("operator"); exists {
			fields = append(fields, zap.Any("operator", operator))
		}
		if shortID, exists := c.Get("shortid"); exists {
			fields = append(fields, zap.Any("shortid", shortID))
		}

		if len(c.Errors) > 0 {
			for _, e := range c.Errors {
				fields = append(fields, zap.String("error", e.Error()))
			}
			logger.Error("请求处理失败", fields...)
			return
		}

		// 根据状态码决定日志级别
		switch {
		case status >= 500:
			logger.Error("服务器错误", fields...)
		case status >= 400:
			logger.Warn("客户端错误", fields...)
		case path == "/healthz" || path == "/metrics":
			logger.Debug("请求处理成功", fields...)
		default:
			logger.Info("请求处理成功", fields...)
		}
	}
}
