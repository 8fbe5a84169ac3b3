package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/myysophia/replay-ingest/internal/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// BatchHandler 处理一批流记录，返回错误时整批不提交
type BatchHandler func(ctx context.Context, records []Record) error

// KafkaReader KafkaConsumer 依赖的读取接口
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer 从 Kafka 批量消费处理流
type KafkaConsumer struct {
	reader    KafkaReader
	batchSize int
	maxWait   time.Duration
}

// NewKafkaConsumer 创建消费者
func NewKafkaConsumer(brokers []string, groupID, topic string, batchSize int, maxWait time.Duration) (*KafkaConsumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka 消费者至少需要一个 broker")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka 消费者需要 group id")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return NewKafkaConsumerWithReader(reader, batchSize, maxWait), nil
}

// NewKafkaConsumerWithReader 使用已有的 reader
func NewKafkaConsumerWithReader(reader KafkaReader, batchSize int, maxWait time.Duration) *KafkaConsumer {
	if batchSize <= 0 {
		batchSize = 1
	}
	if maxWait <= 0 {
		maxWait = time.Second
	}
	return &KafkaConsumer{reader: reader, batchSize: batchSize, maxWait: maxWait}
}

// Run 循环拉取并处理，直到 ctx 取消或处理失败。
// 处理失败时返回错误，未提交的消息在重启后重新投递。
func (c *KafkaConsumer) Run(ctx context.Context, handle BatchHandler) error {
	for {
		msgs, err := c.poll(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if len(msgs) == 0 {
			continue
		}

		records := make([]Record, 0, len(msgs))
		for _, msg := range msgs {
			record, err := DecodeRecord(msg.Value)
			if err != nil {
				logger.Warn("跳过无法解析的流记录",
					zap.Int("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err))
				continue
			}
			records = append(records, record)
		}

		if len(records) > 0 {
			if err := handle(ctx, records); err != nil {
				return fmt.Errorf("处理流记录失败: %w", err)
			}
		}

		// 已处理完的批次即使 ctx 已取消也要提交
		if err := c.reader.CommitMessages(context.WithoutCancel(ctx), msgs...); err != nil {
			return fmt.Errorf("提交 offset 失败: %w", err)
		}
	}
}

// poll 最多拉取 batchSize 条，等待超过 maxWait 时返回已拉取的部分
func (c *KafkaConsumer) poll(ctx context.Context) ([]kafka.Message, error) {
	out := make([]kafka.Message, 0, c.batchSize)
	deadline := time.Now().Add(c.maxWait)
	for len(out) < c.batchSize {
		readCtx, cancel := context.WithDeadline(ctx, deadline)
		msg, err := c.reader.FetchMessage(readCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
				return out, nil
			case ctx.Err() != nil:
				return out, ctx.Err()
			default:
				return out, err
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

// Close 关闭 reader
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
