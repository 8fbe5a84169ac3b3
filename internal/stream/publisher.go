package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/myysophia/replay-ingest/internal/upload"
	"github.com/segmentio/kafka-go"
)

const (
	BackendKinesis = "kinesis"
	BackendKafka   = "kafka"
)

// Publisher 将原始上传投递到处理流，错误原样返回，不重试
type Publisher interface {
	Publish(ctx context.Context, raw *upload.RawUpload, attemptReprocessing bool) error
}

// KinesisPutAPI KinesisPublisher 依赖的客户端接口
type KinesisPutAPI interface {
	PutRecord(ctx context.Context, params *kinesis.PutRecordInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordOutput, error)
}

// KinesisPublisher 通过 PutRecord 投递，分区键为 shortid
type KinesisPublisher struct {
	client     KinesisPutAPI
	streamName string
}

// NewKinesisPublisher 创建 Kinesis 投递器
func NewKinesisPublisher(client KinesisPutAPI, streamName string) *KinesisPublisher {
	return &KinesisPublisher{client: client, streamName: streamName}
}

// Publish 投递一条记录
func (p *KinesisPublisher) Publish(ctx context.Context, raw *upload.RawUpload, attemptReprocessing bool) error {
	data, err := NewRecord(raw, attemptReprocessing).Encode()
	if err != nil {
		return fmt.Errorf("编码流记录失败: %w", err)
	}

	_, err = p.client.PutRecord(ctx, &kinesis.PutRecordInput{
		StreamName:   aws.String(p.streamName),
		Data:         data,
		PartitionKey: aws.String(raw.ShortID),
	})
	if err != nil {
		return fmt.Errorf("投递到 Kinesis 流 %s 失败: %w", p.streamName, err)
	}
	return nil
}

// KafkaWriter KafkaPublisher 依赖的写入接口
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 通过 Kafka topic 投递，按 shortid 哈希分区
type KafkaPublisher struct {
	writer KafkaWriter
	topic  string
}

// NewKafkaPublisher 创建 Kafka 投递器
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka 投递器至少需要一个 broker")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
	}, nil
}

// NewKafkaPublisherWithWriter 使用已有的 writer，测试使用
func NewKafkaPublisherWithWriter(writer KafkaWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, topic: topic}
}

// Publish 投递一条记录
func (p *KafkaPublisher) Publish(ctx context.Context, raw *upload.RawUpload, attemptReprocessing bool) error {
	data, err := NewRecord(raw, attemptReprocessing).Encode()
	if err != nil {
		return fmt.Errorf("编码流记录失败: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(raw.ShortID),
		Value: data,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("投递到 Kafka topic %s 失败: %w", p.topic, err)
	}
	return nil
}

// Close 关闭 writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
