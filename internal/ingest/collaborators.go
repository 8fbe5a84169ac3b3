package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/myysophia/replay-ingest/internal/db/models"
)

// CredentialResolver 解析 Authorization 头
type CredentialResolver interface {
	ResolveToken(ctx context.Context, authorization string) (*models.AuthToken, error)
}

// APIKeyResolver 解析 X-Api-Key 头
type APIKeyResolver interface {
	ResolveAPIKey(ctx context.Context, key string) (*models.APIKey, error)
}

// MetadataValidator 校验上传元数据，返回客户端上报的对局开始时间
type MetadataValidator interface {
	Validate(raw json.RawMessage) (time.Time, error)
}

// UploadProcessor 把上传事件交给回放处理。
// 返回的错误用 ErrParsing / ErrUnsupportedReplay / ErrValidation 分类，
// 可以包装为 *ProcessingError 携带调用栈。
type UploadProcessor interface {
	ProcessUpload(ctx context.Context, event *models.UploadEvent) error
}
