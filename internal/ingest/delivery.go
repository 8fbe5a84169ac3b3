package ingest

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"github.com/myysophia/replay-ingest/internal/oss"
	"github.com/myysophia/replay-ingest/internal/stream"
	"github.com/myysophia/replay-ingest/internal/upload"
)

// Source 投递来源
type Source string

const (
	SourceS3     Source = "s3"
	SourceSNS    Source = "sns"
	SourceStream Source = "stream"
	SourceOSS    Source = "oss"
)

// Delivery 一次原始上传投递，不同来源统一成同一形状
type Delivery struct {
	Source              Source
	Bucket              string
	LogKey              string
	AttemptReprocessing bool
}

// RawUpload 根据投递创建原始上传
func (d Delivery) RawUpload(store oss.ObjectStore) (*upload.RawUpload, error) {
	return upload.New(store, d.Bucket, d.LogKey)
}

// FromS3Record S3 对象创建通知
func FromS3Record(record events.S3EventRecord) Delivery {
	key := record.S3.Object.URLDecodedKey
	if key == "" {
		key = record.S3.Object.Key
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
	}
	return Delivery{
		Source: SourceS3,
		Bucket: record.S3.Bucket.Name,
		LogKey: key,
	}
}

// snsMessage SNS 消息体，兼容 key 和 log_key
type snsMessage struct {
	Bucket              string `json:"bucket"`
	Key                 string `json:"key"`
	LogKey              string `json:"log_key"`
	AttemptReprocessing *bool  `json:"attempt_reprocessing"`
}

// FromSNSMessage SNS 重新投递，未指定时按重新处理对待
func FromSNSMessage(entity events.SNSEntity) (Delivery, error) {
	var msg snsMessage
	if err := json.Unmarshal([]byte(entity.Message), &msg); err != nil {
		return Delivery{}, fmt.Errorf("%w: SNS 消息: %v", stream.ErrMalformedRecord, err)
	}
	key := msg.LogKey
	if key == "" {
		key = msg.Key
	}
	if msg.Bucket == "" || key == "" {
		return Delivery{}, fmt.Errorf("%w: SNS 消息缺少 bucket 或 key", stream.ErrMalformedRecord)
	}
	reprocess := true
	if msg.AttemptReprocessing != nil {
		reprocess = *msg.AttemptReprocessing
	}
	return Delivery{
		Source:              SourceSNS,
		Bucket:              msg.Bucket,
		LogKey:              key,
		AttemptReprocessing: reprocess,
	}, nil
}

// FromStreamRecord 处理流上的记录，data 为解码后的 JSON
func FromStreamRecord(data []byte) (Delivery, error) {
	record, err := stream.DecodeRecord(data)
	if err != nil {
		return Delivery{}, err
	}
	return fromRecord(record), nil
}

func fromRecord(record stream.Record) Delivery {
	return Delivery{
		Source:              SourceStream,
		Bucket:              record.Bucket,
		LogKey:              record.LogKey,
		AttemptReprocessing: record.AttemptReprocessing,
	}
}

// OSSEvent 阿里云 OSS 触发器事件
type OSSEvent struct {
	Events []struct {
		EventName string `json:"eventName"`
		EventTime string `json:"eventTime"`
		OSS       struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key  string `json:"key"`
				Size int64  `json:"size"`
			} `json:"object"`
		} `json:"oss"`
	} `json:"events"`
}

// FromOSSEvent 函数计算 OSS 触发器通知
func FromOSSEvent(payload []byte) ([]Delivery, error) {
	var event OSSEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: OSS 事件: %v", stream.ErrMalformedRecord, err)
	}
	deliveries := make([]Delivery, 0, len(event.Events))
	for _, e := range event.Events {
		deliveries = append(deliveries, Delivery{
			Source: SourceOSS,
			Bucket: e.OSS.Bucket.Name,
			LogKey: e.OSS.Object.Key,
		})
	}
	return deliveries, nil
}
