package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/myysophia/replay-ingest/internal/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HealthHandler 存活检查
type HealthHandler struct {
	*BaseHandler
	db *gorm.DB
}

// NewHealthHandler db 为 nil 时只检查进程本身
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{BaseHandler: NewBaseHandler(), db: db}
}

// Healthz 检查数据库连接
func (h *HealthHandler) Healthz(c *gin.Context) {
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			logger.Error("数据库不可用", zap.Error(err))
			h.InternalError(c, "数据库不可用")
			return
		}
	}
	h.Success(c, gin.H{"status": "ok"})
}
