package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/replay-ingest/internal/db/models"
	"github.com/myysophia/replay-ingest/internal/db/repository"
	"github.com/myysophia/replay-ingest/internal/logger"
	"github.com/myysophia/replay-ingest/internal/oss"
	"github.com/myysophia/replay-ingest/internal/upload"
	"github.com/myysophia/replay-ingest/internal/utils"
	"go.uber.org/zap"
)

// 日志下载地址有效期
const logURLExpire = time.Hour

// UploadEventRequest 查询上传事件
type UploadEventRequest struct {
	ShortID string `uri:"shortid" validate:"required,shortid"`
}

// FailedUpload 失败区中的上传
type FailedUpload struct {
	LogKey   string           `json:"log_key"`
	Attempts []upload.Attempt `json:"attempts"`
}

// UploadEventResponse 上传事件及其失败记录
type UploadEventResponse struct {
	Event  *models.UploadEvent `json:"event,omitempty"`
	Failed *FailedUpload       `json:"failed,omitempty"`
	LogURL string              `json:"log_url,omitempty"`
}

// UploadEventHandler 运维查询上传处理情况
type UploadEventHandler struct {
	*BaseHandler
	events    repository.UploadEventRepository
	store     oss.ObjectStore
	rawBucket string
}

// NewUploadEventHandler 创建上传事件处理器
func NewUploadEventHandler(events repository.UploadEventRepository, store oss.ObjectStore, rawBucket string) *UploadEventHandler {
	return &UploadEventHandler{
		BaseHandler: NewBaseHandler(),
		events:      events,
		store:       store,
		rawBucket:   rawBucket,
	}
}

// Get 查询事件状态、失败区记录和日志地址
func (h *UploadEventHandler) Get(c *gin.Context) {
	var req UploadEventRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		utils.ResponseBadRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	log := logger.ForUpload(req.ShortID).With(zap.String("operator", utils.GetOperator(c)))

	var resp UploadEventResponse
	event, err := h.events.GetByShortID(ctx, req.ShortID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		log.Error("查询上传事件失败", zap.Error(err))
		h.InternalError(c, "查询上传事件失败")
		return
	default:
		resp.Event = event
	}

	failed, err := upload.FindFailed(ctx, h.store, h.rawBucket, req.ShortID)
	if err != nil {
		log.Error("查询失败区失败", zap.Error(err))
		h.Error(c, utils.CodeStorageError, "对象存储不可用")
		return
	}
	if failed != nil {
		history, err := failed.ErrorHistory(ctx)
		if err != nil {
			log.Warn("读取失败记录失败", zap.Error(err))
			history = &upload.ErrorHistory{}
		}
		resp.Failed = &FailedUpload{LogKey: failed.LogKey(), Attempts: history.Attempts}
	}

	if resp.Event == nil && resp.Failed == nil {
		h.Error(c, utils.CodeUploadNotFound, "上传事件不存在")
		return
	}

	switch {
	case resp.Event != nil && resp.Event.LogKey != "":
		resp.LogURL, err = h.store.PresignGet(ctx, resp.Event.LogBucket, resp.Event.LogKey, logURLExpire)
	case failed != nil:
		resp.LogURL, err = failed.LogURL(ctx, logURLExpire)
	}
	if err != nil {
		// 地址生成失败不影响查询结果
		log.Warn("生成日志下载地址失败", zap.Error(err))
	}

	h.Success(c, resp)
}
