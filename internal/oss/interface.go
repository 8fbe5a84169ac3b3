package oss

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"
)

// 存储类型枚举
const (
	StorageTypeAliyunOSS = "ALIYUN_OSS"
	StorageTypeAWSS3     = "AWS_S3"
)

var (
	// ErrStoreUnavailable 传输或鉴权失败，调用方可以重试
	ErrStoreUnavailable = errors.New("对象存储不可用")
	// ErrNotFound 对象不存在
	ErrNotFound = errors.New("对象不存在")
)

// 单次批量删除的最大键数，S3 与 OSS 都是 1000
const maxDeleteBatch = 1000

// ObjectSummary 列举结果中的单个对象
type ObjectSummary struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore 对象存储适配器，不做任何重试
type ObjectStore interface {
	// GetType 获取存储服务类型
	GetType() string

	// Put 写入对象
	Put(ctx context.Context, bucket, key string, body []byte) error

	// Get 读取对象，不存在时返回 ErrNotFound
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Copy 复制对象，源与目标相同时不做任何事
	Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error

	// DeleteOne 删除单个对象
	DeleteOne(ctx context.Context, bucket, key string) error

	// DeleteMany 批量删除对象
	DeleteMany(ctx context.Context, bucket string, keys []string) error

	// ListAll 按前缀列举对象
	// 返回的序列是惰性的，可以重复遍历，每次都从第一页开始
	ListAll(ctx context.Context, bucket, prefix string) iter.Seq2[ObjectSummary, error]

	// PresignGet 生成下载地址
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)

	// PresignPut 生成上传地址
	PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error)
}

// Exists 判断对象是否存在
func Exists(ctx context.Context, store ObjectStore, bucket, key string) (bool, error) {
	_, err := store.Get(ctx, bucket, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// CollectKeys 把列举结果收集成键列表
func CollectKeys(ctx context.Context, store ObjectStore, bucket, prefix string) ([]string, error) {
	var keys []string
	for obj, err := range store.ListAll(ctx, bucket, prefix) {
		if err != nil {
			return nil, err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func contentTypeOf(key string) string {
	if strings.HasSuffix(key, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}

func chunk(keys []string, size int) [][]string {
	var out [][]string
	for len(keys) > size {
		out = append(out, keys[:size])
		keys = keys[size:]
	}
	if len(keys) > 0 {
		out = append(out, keys)
	}
	return out
}
