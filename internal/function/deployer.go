package function

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/myysophia/replay-ingest/internal/db/models"
	"github.com/myysophia/replay-ingest/internal/ingest"
)

const (
	ProviderAWSLambda = "aws_lambda"
	ProviderAliyunFC  = "aliyun_fc"
)

// ErrUnsupported 当前平台不支持该操作
var ErrUnsupported = errors.New("当前函数平台不支持该操作")

// Deployer 函数版本与别名管理
type Deployer interface {
	// AliasVersion 别名当前指向的版本
	AliasVersion(ctx context.Context, alias string) (string, error)
	// PublishVersion 发布新的不可变版本
	PublishVersion(ctx context.Context, description string) (string, error)
	// UpdateAlias 把别名指向 version
	UpdateAlias(ctx context.Context, alias, version string) error
	// ConsumerEnabled 处理流的消费者是否启用
	ConsumerEnabled(ctx context.Context) (bool, error)
	// SetConsumerEnabled 启用或停用处理流的消费者
	SetConsumerEnabled(ctx context.Context, enabled bool) error
}

// processRequest 发给回放处理函数的请求
type processRequest struct {
	ShortID   string          `json:"shortid"`
	LogBucket string          `json:"log_bucket"`
	LogKey    string          `json:"log_key"`
	Tainted   bool            `json:"tainted"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

func newProcessRequest(event *models.UploadEvent) ([]byte, error) {
	req := processRequest{
		ShortID:   event.ShortID,
		LogBucket: event.LogBucket,
		LogKey:    event.LogKey,
		Tainted:   event.Tainted,
	}
	if len(event.Metadata) > 0 {
		req.Metadata = json.RawMessage(event.Metadata)
	}
	return json.Marshal(req)
}

// processResult 回放处理函数的返回
type processResult struct {
	ResultType string `json:"result_type"`
	Error      string `json:"error"`
	Traceback  string `json:"traceback"`
}

// functionError 函数执行失败时平台返回的错误体
type functionError struct {
	ErrorMessage string   `json:"errorMessage"`
	ErrorType    string   `json:"errorType"`
	StackTrace   []string `json:"stackTrace"`
}

// classifyResult 把函数返回映射为 ingest 的下游错误分类
func classifyResult(payload []byte, failed bool) error {
	if failed {
		var fe functionError
		if err := json.Unmarshal(payload, &fe); err != nil || fe.ErrorMessage == "" {
			return &ingest.ProcessingError{Err: fmt.Errorf("处理函数执行失败: %s", strings.TrimSpace(string(payload)))}
		}
		return &ingest.ProcessingError{
			Err:       fmt.Errorf("%s: %s", fe.ErrorType, fe.ErrorMessage),
			Traceback: strings.Join(fe.StackTrace, "\n"),
		}
	}

	var result processResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return &ingest.ProcessingError{Err: fmt.Errorf("解析处理结果失败: %w", err)}
	}

	var kind error
	switch models.UploadStatus(result.ResultType) {
	case models.UploadStatusSuccess:
		return nil
	case models.UploadStatusParsingError:
		kind = ingest.ErrParsing
	case models.UploadStatusUnsupported:
		kind = ingest.ErrUnsupportedReplay
	case models.UploadStatusValidationError:
		kind = ingest.ErrValidation
	default:
		return &ingest.ProcessingError{
			Err:       fmt.Errorf("处理失败 (%s): %s", result.ResultType, result.Error),
			Traceback: result.Traceback,
		}
	}
	return &ingest.ProcessingError{
		Err:       fmt.Errorf("%w: %s", kind, result.Error),
		Traceback: result.Traceback,
	}
}
