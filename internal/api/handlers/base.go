package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/replay-ingest/internal/utils"
)

// BaseHandler 基础处理器
type BaseHandler struct{}

// NewBaseHandler 创建基础处理器
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// Success 成功响应
func (h *BaseHandler) Success(c *gin.Context, data interface{}) {
	utils.ResponseWithData(c, data)
}

// Error 错误响应
func (h *BaseHandler) Error(c *gin.Context, code int, message string) {
	utils.ResponseError(c, code, errors.New(message))
}

// BadRequest 请求参数错误
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	utils.ResponseBadRequest(c, errors.New(message))
}

// Unauthorized 未授权
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	utils.ResponseUnauthorized(c, errors.New(message))
}

// InternalError 内部错误
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	utils.ResponseInternalError(c, errors.New(message))
}
