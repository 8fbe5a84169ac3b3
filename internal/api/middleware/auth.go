package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/replay-ingest/internal/auth"
	"github.com/myysophia/replay-ingest/internal/config"
	"github.com/myysophia/replay-ingest/internal/logger"
	"github.com/myysophia/replay-ingest/internal/utils"
	"go.uber.org/zap"
)

// AuthMiddleware 运维接口认证中间件
func AuthMiddleware(jwtConfig *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.ResponseUnauthorized(c, errors.New("未提供认证令牌"))
			c.Abort()
			return
		}

		// 检查 Authorization 头格式
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			utils.ResponseUnauthorized(c, errors.New("认证令牌格式错误"))
			c.Abort()
			return
		}

		claims, err := auth.ParseToken(parts[1], jwtConfig)
		if err != nil {
			logger.Warn("解析令牌失败", zap.Error(err))
			utils.ResponseUnauthorized(c, err)
			c.Abort()
			return
		}

		c.Set("operator", claims.Operator)
		c.Next()
	}
}
