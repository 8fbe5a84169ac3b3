package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/myysophia/replay-ingest/internal/config"
	"github.com/myysophia/replay-ingest/internal/db/models"
	"github.com/myysophia/replay-ingest/internal/db/repository"
	"github.com/myysophia/replay-ingest/internal/logger"
	"github.com/myysophia/replay-ingest/internal/metrics"
	"github.com/myysophia/replay-ingest/internal/oss"
	"github.com/myysophia/replay-ingest/internal/upload"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Options 处理器配置
type Options struct {
	// UploadBucket 持久区所在的存储桶
	UploadBucket string
	// CanaryAlias 与 InvokedAlias 相同时新建的事件标记为金丝雀
	CanaryAlias  string
	InvokedAlias string
	// MaxClockSkew 客户端上报的对局开始时间与上传时间的最大偏差，0 表示不检查
	MaxClockSkew time.Duration
}

// OptionsFromConfig 从全局配置构造
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		UploadBucket: cfg.Storage.UploadBucket,
		CanaryAlias:  cfg.Function.CanaryAlias,
		InvokedAlias: cfg.Ingest.InvokedAlias,
		MaxClockSkew: cfg.Ingest.GetMaxClockSkew(),
	}
}

// Processor 原始上传状态机
type Processor struct {
	store       oss.ObjectStore
	events      repository.UploadEventRepository
	credentials CredentialResolver
	apiKeys     APIKeyResolver
	validator   MetadataValidator
	processor   UploadProcessor
	metrics     *metrics.Metrics
	opts        Options
	now         func() time.Time
}

// NewProcessor 创建处理器
func NewProcessor(
	store oss.ObjectStore,
	events repository.UploadEventRepository,
	credentials CredentialResolver,
	apiKeys APIKeyResolver,
	validator MetadataValidator,
	processor UploadProcessor,
	m *metrics.Metrics,
	opts Options,
) *Processor {
	return &Processor{
		store:       store,
		events:      events,
		credentials: credentials,
		apiKeys:     apiKeys,
		validator:   validator,
		processor:   processor,
		metrics:     m,
		opts:        opts,
		now:         time.Now,
	}
}

// Store 处理器使用的对象存储
func (p *Processor) Store() oss.ObjectStore {
	return p.store
}

func (p *Processor) canary() bool {
	return p.opts.CanaryAlias != "" && p.opts.InvokedAlias == p.opts.CanaryAlias
}

// ProcessDelivery 解析投递后处理，对象键无法识别的投递记录后丢弃
func (p *Processor) ProcessDelivery(ctx context.Context, d Delivery) error {
	raw, err := d.RawUpload(p.store)
	if errors.Is(err, upload.ErrMalformedKey) {
		p.metrics.IncMalformedKey()
		logger.Warn("对象键格式错误，丢弃投递",
			zap.String("bucket", d.Bucket),
			zap.String("log_key", d.LogKey),
			zap.Error(err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("解析投递 %s/%s 失败: %w", d.Bucket, d.LogKey, err)
	}
	return p.Process(ctx, raw, d.AttemptReprocessing)
}

// Process 处理一次原始上传
//
// 重复投递与已移入失败区的上传直接返回 nil。
// 事件创建失败时不动对象存储，由投递方重试。
// 之后到持久化完成之前的失败会先记录事件状态，再把原始上传移入失败区后返回。
// 鉴权失败返回 ErrAuthResolution，下游处理失败只记录在事件上。
func (p *Processor) Process(ctx context.Context, raw *upload.RawUpload, isReprocessing bool) error {
	log := logger.ForUpload(raw.ShortID)
	start := p.now()
	defer func() { p.metrics.ObserveProcessing(p.now().Sub(start)) }()

	event, created, err := p.events.GetOrCreate(ctx, raw.ShortID, models.UploadEvent{
		Status: models.UploadStatusPending,
		Canary: p.canary(),
	})
	if err != nil {
		return fmt.Errorf("获取上传事件 %s 失败: %w", raw.ShortID, err)
	}

	if !created {
		if !isReprocessing {
			p.metrics.IncDoublePut()
			log.Info("重复投递，忽略", zap.String("status", string(event.Status)))
			return nil
		}
		log.Info("重新处理上传事件", zap.String("previous_status", string(event.Status)))
		event.SetStatus(models.UploadStatusPending, "")
		event.Canary = p.canary()
	}

	descriptor, err := raw.Descriptor(ctx)
	if errors.Is(err, upload.ErrMisclassifiedUpload) {
		p.metrics.IncMisclassified()
		log.Info("上传已在失败区，忽略本次投递", zap.Error(err))
		return nil
	}
	if err != nil {
		event.SetStatus(models.UploadStatusServerError, err.Error())
		if saveErr := p.events.Save(ctx, event); saveErr != nil {
			log.Error("保存上传事件失败", zap.Error(saveErr))
		}
		p.markFailed(ctx, raw, err)
		return err
	}

	logKey, descriptorKey := upload.DurableKeys(event.CreatedAt, event.ShortID)
	if err := raw.RelocateToDurableZone(ctx, p.opts.UploadBucket, logKey, descriptorKey); err != nil {
		event.SetStatus(models.UploadStatusServerError, err.Error())
		if saveErr := p.events.Save(ctx, event); saveErr != nil {
			log.Error("保存上传事件失败", zap.Error(saveErr))
		}
		p.markFailed(ctx, raw, err)
		return err
	}

	event.LogBucket = p.opts.UploadBucket
	event.LogKey = logKey
	event.DescriptorKey = descriptorKey
	event.UploadIP = descriptor.SourceIP
	event.UserAgent = descriptor.GatewayHeaders.UserAgent
	if len(descriptor.UploadMetadata) > 0 {
		event.Metadata = datatypes.JSON(descriptor.UploadMetadata)
	}

	if err := p.authenticate(ctx, event, descriptor.GatewayHeaders); err != nil {
		log.Warn("上传鉴权失败", zap.Error(err))
		event.SetStatus(models.UploadStatusValidationError, err.Error())
		if saveErr := p.save(ctx, event); saveErr != nil {
			return saveErr
		}
		p.discard(ctx, raw, event)
		return err
	}
	event.SetStatus(models.UploadStatusValidating, "")
	if err := p.save(ctx, event); err != nil {
		return err
	}

	if event.UserAgent == "" {
		event.SetStatus(models.UploadStatusUnsupportedClient, "缺少 User-Agent")
		if err := p.save(ctx, event); err != nil {
			return err
		}
		p.discard(ctx, raw, event)
		return nil
	}

	matchStart, err := p.validator.Validate(descriptor.UploadMetadata)
	if err != nil {
		log.Info("上传元数据校验失败", zap.Error(err))
		event.SetStatus(models.UploadStatusValidationError, err.Error())
		if saveErr := p.save(ctx, event); saveErr != nil {
			return saveErr
		}
		p.discard(ctx, raw, event)
		return nil
	}

	event.Tainted = p.tainted(raw.Timestamp, matchStart)
	event.SetStatus(models.UploadStatusProcessing, "")
	if err := p.save(ctx, event); err != nil {
		return err
	}
	p.discard(ctx, raw, event)

	return p.invoke(ctx, event)
}

// authenticate 解析 Authorization 和 X-Api-Key
func (p *Processor) authenticate(ctx context.Context, event *models.UploadEvent, headers upload.GatewayHeaders) error {
	if headers.Authorization == "" {
		return fmt.Errorf("%w: 缺少 Authorization", ErrAuthResolution)
	}
	if headers.APIKey == "" {
		return fmt.Errorf("%w: 缺少 X-Api-Key", ErrAuthResolution)
	}

	token, err := p.credentials.ResolveToken(ctx, headers.Authorization)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthResolution, err)
	}
	apiKey, err := p.apiKeys.ResolveAPIKey(ctx, headers.APIKey)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthResolution, err)
	}

	event.AuthTokenKey = token.Key
	event.APIKeyID = &apiKey.ID
	return nil
}

func (p *Processor) tainted(uploadedAt, matchStart time.Time) bool {
	if p.opts.MaxClockSkew <= 0 || matchStart.IsZero() {
		return false
	}
	skew := matchStart.Sub(uploadedAt)
	if skew < 0 {
		skew = -skew
	}
	return skew > p.opts.MaxClockSkew
}

// invoke 调用下游处理，失败只记录不返回
func (p *Processor) invoke(ctx context.Context, event *models.UploadEvent) error {
	log := logger.ForUpload(event.ShortID)

	err := p.processor.ProcessUpload(ctx, event)
	status := classify(err)
	if err != nil {
		log.Warn("回放处理失败", zap.String("status", string(status)), zap.Error(err))
		event.SetStatus(status, err.Error())
		var perr *ProcessingError
		if errors.As(err, &perr) {
			event.Traceback = perr.Traceback
		}
	} else {
		event.SetStatus(status, "")
	}
	return p.save(ctx, event)
}

// classify 下游错误到终态
func classify(err error) models.UploadStatus {
	switch {
	case err == nil:
		return models.UploadStatusSuccess
	case errors.Is(err, ErrParsing):
		return models.UploadStatusParsingError
	case errors.Is(err, ErrUnsupportedReplay):
		return models.UploadStatusUnsupported
	case errors.Is(err, ErrValidation):
		return models.UploadStatusValidationError
	default:
		return models.UploadStatusServerError
	}
}

func (p *Processor) save(ctx context.Context, event *models.UploadEvent) error {
	if err := p.events.Save(ctx, event); err != nil {
		return err
	}
	p.metrics.ObserveStatus(string(event.Status))
	return nil
}

// discard 删除已持久化的原始上传，持久区上传保持不动
func (p *Processor) discard(ctx context.Context, raw *upload.RawUpload, event *models.UploadEvent) {
	if !raw.Deletable() {
		return
	}
	if err := raw.Delete(ctx); err != nil {
		logger.ForUpload(raw.ShortID).Warn("删除原始上传失败",
			zap.String("raw", raw.String()),
			zap.String("durable_key", event.LogKey),
			zap.Error(err))
	}
}

// markFailed 尽力把原始上传移入失败区
func (p *Processor) markFailed(ctx context.Context, raw *upload.RawUpload, cause error) {
	if !raw.Deletable() {
		return
	}
	if err := raw.MarkFailed(ctx, cause.Error()); err != nil {
		logger.ForUpload(raw.ShortID).Error("移入失败区失败",
			zap.String("raw", raw.String()),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}
}
