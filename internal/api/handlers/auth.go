package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/myysophia/replay-ingest/internal/auth"
	"github.com/myysophia/replay-ingest/internal/config"
	"github.com/myysophia/replay-ingest/internal/logger"
	"github.com/myysophia/replay-ingest/internal/utils"
	"go.uber.org/zap"
)

// TokenRequest 运维登录请求
type TokenRequest struct {
	Operator string `json:"operator" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
}

// AuthHandler 认证处理器
type AuthHandler struct {
	*BaseHandler
	jwt *config.JWTConfig
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(jwtConfig *config.JWTConfig) *AuthHandler {
	return &AuthHandler{
		BaseHandler: NewBaseHandler(),
		jwt:         jwtConfig,
	}
}

// Token 校验运维密码并签发 JWT
func (h *AuthHandler) Token(c *gin.Context) {
	var req TokenRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		utils.ResponseBadRequest(c, err)
		return
	}

	if err := auth.CheckAdminPassword(req.Password, h.jwt); err != nil {
		logger.Warn("运维登录失败", zap.String("operator", req.Operator), zap.String("ip", c.ClientIP()))
		h.Unauthorized(c, "账号或密码错误")
		return
	}

	token, err := auth.GenerateToken(req.Operator, h.jwt)
	if err != nil {
		h.InternalError(c, "生成令牌失败")
		return
	}

	logger.Info("运维登录成功", zap.String("operator", req.Operator))
	h.Success(c, gin.H{
		"token":      token,
		"operator":   req.Operator,
		"expires_in": h.jwt.ExpiresIn,
	})
}
