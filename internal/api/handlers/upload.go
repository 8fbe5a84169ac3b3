package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lithammer/shortuuid/v4"
	"github.com/myysophia/replay-ingest/internal/logger"
	"github.com/myysophia/replay-ingest/internal/oss"
	"github.com/myysophia/replay-ingest/internal/upload"
	"github.com/myysophia/replay-ingest/internal/utils"
	"go.uber.org/zap"
)

// 日志上传地址只签发给 text/plain
const logContentType = "text/plain"

// RequestUploadResponse 上传入口的返回，客户端直接读取顶层字段
type RequestUploadResponse struct {
	PutURL  string `json:"put_url"`
	ShortID string `json:"shortid"`
}

// UploadHandler 上传入口，不依赖数据库
type UploadHandler struct {
	*BaseHandler
	store     oss.ObjectStore
	rawBucket string
	putTTL    time.Duration
	now       func() time.Time
	newID     func() string
}

// NewUploadHandler 创建上传入口处理器
func NewUploadHandler(store oss.ObjectStore, rawBucket string, putTTL time.Duration) *UploadHandler {
	if putTTL <= 0 {
		putTTL = 24 * time.Hour
	}
	return &UploadHandler{
		BaseHandler: NewBaseHandler(),
		store:       store,
		rawBucket:   rawBucket,
		putTTL:      putTTL,
		now:         time.Now,
		newID:       func() string { return shortuuid.New() },
	}
}

// RequestUpload 写入描述文件并返回日志的上传地址
func (h *UploadHandler) RequestUpload(c *gin.Context) {
	authorization := c.GetHeader("Authorization")
	if authorization == "" {
		h.Unauthorized(c, "缺少 Authorization 请求头")
		return
	}
	if len(strings.Fields(authorization)) != 2 {
		h.Unauthorized(c, "Authorization 必须包含认证方式和令牌")
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		h.BadRequest(c, "读取请求体失败")
		return
	}
	if len(body) == 0 || !json.Valid(body) {
		h.BadRequest(c, "上传元数据必须是 JSON")
		return
	}

	shortID := h.newID()
	ts := h.now().UTC()
	c.Set("shortid", shortID)
	log := logger.ForUpload(shortID)

	descriptor := upload.Descriptor{
		GatewayHeaders: upload.GatewayHeaders{
			Authorization: authorization,
			APIKey:        c.GetHeader("X-Api-Key"),
			UserAgent:     c.GetHeader("User-Agent"),
		},
		ShortID:        shortID,
		SourceIP:       c.ClientIP(),
		UploadMetadata: json.RawMessage(body),
	}
	payload, err := json.MarshalIndent(descriptor, "", "    ")
	if err != nil {
		h.InternalError(c, "序列化描述文件失败")
		return
	}

	descriptorKey := upload.GenerateKey(upload.StateNew, ts, shortID, upload.KindDescriptor)
	logKey := upload.GenerateKey(upload.StateNew, ts, shortID, upload.KindLog)

	if err := h.store.Put(c.Request.Context(), h.rawBucket, descriptorKey, payload); err != nil {
		log.Error("写入描述文件失败", zap.String("key", descriptorKey), zap.Error(err))
		h.storageError(c, err)
		return
	}

	putURL, err := h.store.PresignPut(c.Request.Context(), h.rawBucket, logKey, logContentType, h.putTTL)
	if err != nil {
		log.Error("生成上传地址失败", zap.String("key", logKey), zap.Error(err))
		h.storageError(c, err)
		return
	}

	log.Info("已签发日志上传地址", zap.String("descriptor", descriptorKey), zap.String("log", logKey))
	c.JSON(http.StatusOK, RequestUploadResponse{PutURL: putURL, ShortID: shortID})
}

func (h *UploadHandler) storageError(c *gin.Context, err error) {
	if errors.Is(err, oss.ErrStoreUnavailable) {
		h.Error(c, utils.CodeStorageError, "对象存储不可用")
		return
	}
	h.InternalError(c, "创建上传失败")
}
