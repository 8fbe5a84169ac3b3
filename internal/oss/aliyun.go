package oss

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sync"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/myysophia/replay-ingest/internal/config"
	"github.com/myysophia/replay-ingest/internal/logger"
	"go.uber.org/zap"
)

// AliyunStore 阿里云OSS存储服务
type AliyunStore struct {
	client  *oss.Client
	buckets map[string]*oss.Bucket
	lock    sync.RWMutex
}

// NewAliyunStore 创建阿里云OSS存储服务
func NewAliyunStore(cfg *config.AliyunOSSConfig) (*AliyunStore, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("初始化阿里云OSS客户端失败: %w", err)
	}

	return &AliyunStore{
		client:  client,
		buckets: make(map[string]*oss.Bucket),
	}, nil
}

// GetType 获取存储服务类型
func (s *AliyunStore) GetType() string {
	return StorageTypeAliyunOSS
}

// bucket 获取 Bucket 句柄，按名称缓存
func (s *AliyunStore) bucket(name string) (*oss.Bucket, error) {
	s.lock.RLock()
	b, ok := s.buckets[name]
	s.lock.RUnlock()
	if ok {
		return b, nil
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if b, ok = s.buckets[name]; ok {
		return b, nil
	}

	b, err := s.client.Bucket(name)
	if err != nil {
		return nil, fmt.Errorf("获取阿里云OSS Bucket失败: %w: %w", ErrStoreUnavailable, err)
	}
	s.buckets[name] = b
	return b, nil
}

// Put 写入对象
func (s *AliyunStore) Put(ctx context.Context, bucket, key string, body []byte) error {
	b, err := s.bucket(bucket)
	if err != nil {
		return err
	}

	err = b.PutObject(key, bytes.NewReader(body), oss.ContentType(contentTypeOf(key)), oss.WithContext(ctx))
	if err != nil {
		logger.Error("阿里云OSS写入对象失败", zap.String("bucket", bucket), zap.String("objectKey", key), zap.Error(err))
		return classifyOSSError("写入", bucket, key, err)
	}
	return nil
}

// Get 读取对象
func (s *AliyunStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	b, err := s.bucket(bucket)
	if err != nil {
		return nil, err
	}

	body, err := b.GetObject(key, oss.WithContext(ctx))
	if err != nil {
		return nil, classifyOSSError("读取", bucket, key, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("读取阿里云OSS对象内容失败 (%s/%s): %w: %w", bucket, key, ErrStoreUnavailable, err)
	}
	return data, nil
}

// Copy 复制对象
func (s *AliyunStore) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	if srcBucket == dstBucket && srcKey == dstKey {
		return nil
	}

	b, err := s.bucket(dstBucket)
	if err != nil {
		return err
	}

	_, err = b.CopyObjectFrom(srcBucket, srcKey, dstKey, oss.WithContext(ctx))
	if err != nil {
		logger.Error("阿里云OSS复制对象失败",
			zap.String("src", srcBucket+"/"+srcKey),
			zap.String("dst", dstBucket+"/"+dstKey),
			zap.Error(err))
		return classifyOSSError("复制", srcBucket, srcKey, err)
	}
	return nil
}

// DeleteOne 删除对象
func (s *AliyunStore) DeleteOne(ctx context.Context, bucket, key string) error {
	b, err := s.bucket(bucket)
	if err != nil {
		return err
	}

	if err := b.DeleteObject(key, oss.WithContext(ctx)); err != nil {
		logger.Error("删除阿里云OSS对象失败", zap.String("bucket", bucket), zap.String("objectKey", key), zap.Error(err))
		return classifyOSSError("删除", bucket, key, err)
	}
	return nil
}

// DeleteMany 批量删除对象
func (s *AliyunStore) DeleteMany(ctx context.Context, bucket string, keys []string) error {
	b, err := s.bucket(bucket)
	if err != nil {
		return err
	}

	for _, batch := range chunk(keys, maxDeleteBatch) {
		if _, err := b.DeleteObjects(batch, oss.DeleteObjectsQuiet(true), oss.WithContext(ctx)); err != nil {
			return classifyOSSError("批量删除", bucket, batch[0], err)
		}
	}
	return nil
}

// ListAll 按前缀列举对象
func (s *AliyunStore) ListAll(ctx context.Context, bucket, prefix string) iter.Seq2[ObjectSummary, error] {
	return func(yield func(ObjectSummary, error) bool) {
		b, err := s.bucket(bucket)
		if err != nil {
			yield(ObjectSummary{}, err)
			return
		}

		token := ""
		for {
			opts := []oss.Option{oss.Prefix(prefix), oss.MaxKeys(maxDeleteBatch), oss.WithContext(ctx)}
			if token != "" {
				opts = append(opts, oss.ContinuationToken(token))
			}

			page, err := b.ListObjectsV2(opts...)
			if err != nil {
				yield(ObjectSummary{}, classifyOSSError("列举", bucket, prefix, err))
				return
			}
			for _, obj := range page.Objects {
				if !yield(ObjectSummary{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified}, nil) {
					return
				}
			}
			if !page.IsTruncated {
				return
			}
			token = page.NextContinuationToken
		}
	}
}

// PresignGet 生成下载URL
func (s *AliyunStore) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	b, err := s.bucket(bucket)
	if err != nil {
		return "", err
	}

	signedURL, err := b.SignURL(key, oss.HTTPGet, int64(ttl.Seconds()))
	if err != nil {
		logger.Error("生成阿里云OSS下载URL失败", zap.String("objectKey", key), zap.Error(err))
		return "", fmt.Errorf("生成阿里云OSS下载URL失败: %w", err)
	}
	return signedURL, nil
}

// PresignPut 生成上传URL
func (s *AliyunStore) PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error) {
	b, err := s.bucket(bucket)
	if err != nil {
		return "", err
	}

	var opts []oss.Option
	if contentType != "" {
		opts = append(opts, oss.ContentType(contentType))
	}

	signedURL, err := b.SignURL(key, oss.HTTPPut, int64(ttl.Seconds()), opts...)
	if err != nil {
		logger.Error("生成阿里云OSS上传URL失败", zap.String("objectKey", key), zap.Error(err))
		return "", fmt.Errorf("生成阿里云OSS上传URL失败: %w", err)
	}
	return signedURL, nil
}

func classifyOSSError(op, bucket, key string, err error) error {
	var serr oss.ServiceError
	if errors.As(err, &serr) && (serr.StatusCode == http.StatusNotFound || serr.Code == "NoSuchKey") {
		return fmt.Errorf("阿里云OSS%s失败 (%s/%s): %w", op, bucket, key, ErrNotFound)
	}
	return fmt.Errorf("阿里云OSS%s失败 (%s/%s): %w: %w", op, bucket, key, ErrStoreUnavailable, err)
}
