package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/replay-ingest/internal/logger"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// 定义状态码
const (
	CodeSuccess       = 200 // 成功
	CodeInvalidParams = 400 // 参数错误
	CodeUnauthorized  = 401 // 未授权
	CodeNotFound      = 404 // 资源不存在
	CodeInternalError = 500 // 服务器内部错误

	// 上传相关状态码
	CodeUploadNotFound = 40410 // 上传事件不存在
	CodeStorageError   = 50301 // 对象存储不可用
)

// 对应的消息
var codeMsgMap = map[int]string{
	CodeSuccess:       "操作成功",
	CodeInvalidParams: "参数错误",
	CodeUnauthorized:  "未授权",
	CodeNotFound:      "资源不存在",
	CodeInternalError: "服务器内部错误",

	CodeUploadNotFound: "上传事件不存在",
	CodeStorageError:   "对象存储不可用",
}

// HTTPStatus 业务码对应的 HTTP 状态码，五位业务码取前三位
func HTTPStatus(code int) int {
	for code >= 1000 {
		code /= 10
	}
	if code < 100 || code > 599 {
		return http.StatusInternalServerError
	}
	return code
}

// ResponseWithJSON 返回JSON响应
func ResponseWithJSON(c *gin.Context, code int, data interface{}) {
	msg, ok := codeMsgMap[code]
	if !ok {
		msg = "未知错误"
	}

	c.JSON(HTTPStatus(code), Response{
		Code:    code,
		Message: msg,
		Data:    data,
	})
}

// ResponseWithData 返回成功响应，包含数据
func ResponseWithData(c *gin.Context, data interface{}) {
	ResponseWithJSON(c, CodeSuccess, data)
}

// ResponseError 返回错误响应
func ResponseError(c *gin.Context, code int, err error) {
	msg, ok := codeMsgMap[code]
	if !ok {
		msg = "未知错误"
	}

	// 如果提供了错误信息，则使用错误信息
	if err != nil {
		msg = err.Error()
	}

	fields := []zap.Field{
		zap.Int("code", code),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
		zap.String("message", msg),
	}
	if HTTPStatus(code) >= http.StatusInternalServerError {
		logger.Error("API错误响应", fields...)
	} else {
		logger.Warn("API错误响应", fields...)
	}

	c.JSON(HTTPStatus(code), Response{
		Code:    code,
		Message: msg,
	})
}

// ResponseBadRequest 返回参数错误响应
func ResponseBadRequest(c *gin.Context, err error) {
	ResponseError(c, CodeInvalidParams, err)
}

// ResponseUnauthorized 返回未授权响应
func ResponseUnauthorized(c *gin.Context, err error) {
	ResponseError(c, CodeUnauthorized, err)
}

// ResponseInternalError 返回服务器内部错误响应
func ResponseInternalError(c *gin.Context, err error) {
	ResponseError(c, CodeInternalError, err)
}

// GetOperator 从上下文中获取运维账号
func GetOperator(c *gin.Context) string {
	operator, exists := c.Get("operator")
	if !exists {
		return ""
	}
	name, _ := operator.(string)
	return name
}
