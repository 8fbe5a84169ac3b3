package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/myysophia/replay-ingest/internal/logger"
	"github.com/myysophia/replay-ingest/internal/stream"
	"go.uber.org/zap"
)

// ErrUnknownEvent 无法识别的触发事件
var ErrUnknownEvent = errors.New("无法识别的触发事件")

// 触发事件的来源标识
const (
	eventSourceKinesis = "aws:kinesis"
	eventSourceS3      = "aws:s3"
	eventSourceSNS     = "aws:sns"
	eventSourceOSS     = "acs:oss"
)

// DeliveryProcessor 处理单个投递
type DeliveryProcessor interface {
	ProcessDelivery(ctx context.Context, d Delivery) error
}

// Handler 把各种来源的批量通知扇出给处理器
type Handler struct {
	processor   DeliveryProcessor
	concurrency int
}

// NewHandler 创建处理入口，concurrency <= 0 时不限制
func NewHandler(processor DeliveryProcessor, concurrency int) *Handler {
	return &Handler{processor: processor, concurrency: concurrency}
}

// Handle 处理一批投递，全部完成后返回第一个错误
func (h *Handler) Handle(ctx context.Context, deliveries []Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}
	logger.Debug("处理一批原始上传", zap.Int("count", len(deliveries)))

	return FanOut(ctx, deliveries, h.concurrency, func(ctx context.Context, d Delivery) error {
		err := h.processor.ProcessDelivery(ctx, d)
		if err != nil {
			logger.Error("处理原始上传失败",
				zap.String("source", string(d.Source)),
				zap.String("bucket", d.Bucket),
				zap.String("key", d.LogKey),
				zap.Error(err))
		}
		return err
	})
}

// HandleKinesisEvent Kinesis 流触发，格式错误的记录跳过
func (h *Handler) HandleKinesisEvent(ctx context.Context, event events.KinesisEvent) error {
	deliveries := make([]Delivery, 0, len(event.Records))
	for _, record := range event.Records {
		d, err := FromStreamRecord(record.Kinesis.Data)
		if err != nil {
			logger.Warn("跳过格式错误的流记录",
				zap.String("event_id", record.EventID),
				zap.String("partition_key", record.Kinesis.PartitionKey),
				zap.Error(err))
			continue
		}
		deliveries = append(deliveries, d)
	}
	return h.Handle(ctx, deliveries)
}

// HandleRecords Kafka 消费者的批处理函数
func (h *Handler) HandleRecords(ctx context.Context, records []stream.Record) error {
	deliveries := make([]Delivery, 0, len(records))
	for _, r := range records {
		deliveries = append(deliveries, fromRecord(r))
	}
	return h.Handle(ctx, deliveries)
}

// HandleS3Event 对象创建通知
func (h *Handler) HandleS3Event(ctx context.Context, event events.S3Event) error {
	deliveries := make([]Delivery, 0, len(event.Records))
	for _, record := range event.Records {
		deliveries = append(deliveries, FromS3Record(record))
	}
	return h.Handle(ctx, deliveries)
}

// HandleSNSEvent SNS 重新处理通知
func (h *Handler) HandleSNSEvent(ctx context.Context, event events.SNSEvent) error {
	deliveries := make([]Delivery, 0, len(event.Records))
	for _, record := range event.Records {
		d, err := FromSNSMessage(record.SNS)
		if err != nil {
			logger.Warn("跳过格式错误的 SNS 消息", zap.String("message_id", record.SNS.MessageID), zap.Error(err))
			continue
		}
		deliveries = append(deliveries, d)
	}
	return h.Handle(ctx, deliveries)
}

// HandleOSSEvent 函数计算的 OSS 触发器
func (h *Handler) HandleOSSEvent(ctx context.Context, payload []byte) error {
	deliveries, err := FromOSSEvent(payload)
	if err != nil {
		return err
	}
	return h.Handle(ctx, deliveries)
}

// triggerEnvelope 只解析出事件来源，SNS 的字段名首字母大写，依赖大小写不敏感匹配
type triggerEnvelope struct {
	Records []struct {
		EventSource string `json:"eventSource"`
	} `json:"Records"`
	Events []struct {
		EventSource string `json:"eventSource"`
	} `json:"events"`
}

// Dispatch 根据事件来源分发函数平台的原始触发事件
func (h *Handler) Dispatch(ctx context.Context, payload json.RawMessage) error {
	var envelope triggerEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownEvent, err)
	}

	var source string
	switch {
	case len(envelope.Records) > 0:
		source = envelope.Records[0].EventSource
	case len(envelope.Events) > 0:
		source = envelope.Events[0].EventSource
	default:
		logger.Debug("触发事件为空")
		return nil
	}

	switch source {
	case eventSourceKinesis:
		var event events.KinesisEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("%w: %v", ErrUnknownEvent, err)
		}
		return h.HandleKinesisEvent(ctx, event)
	case eventSourceS3:
		var event events.S3Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("%w: %v", ErrUnknownEvent, err)
		}
		return h.HandleS3Event(ctx, event)
	case eventSourceSNS:
		var event events.SNSEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("%w: %v", ErrUnknownEvent, err)
		}
		return h.HandleSNSEvent(ctx, event)
	case eventSourceOSS:
		return h.HandleOSSEvent(ctx, payload)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, source)
	}
}
