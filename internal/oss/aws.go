package oss

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/myysophia/replay-ingest/internal/config"
	"github.com/myysophia/replay-ingest/internal/logger"
	"go.uber.org/zap"
)

// S3Store AWS S3存储服务
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
}

// NewS3Store 创建AWS S3存储服务
func NewS3Store(ctx context.Context, cfg *config.AWSS3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	// 未配置静态凭证时使用默认凭证链（Lambda 执行角色）
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		logger.Error("创建AWS配置失败", zap.Error(err))
		return nil, fmt.Errorf("创建AWS配置失败: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewS3StoreFromClient(client), nil
}

// NewS3StoreFromClient 使用已有客户端创建存储服务
func NewS3StoreFromClient(client *s3.Client) *S3Store {
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
	}
}

// GetType 获取存储服务类型
func (s *S3Store) GetType() string {
	return StorageTypeAWSS3
}

// Put 写入对象
func (s *S3Store) Put(ctx context.Context, bucket, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentTypeOf(key)),
	})
	if err != nil {
		logger.Error("AWS S3写入对象失败", zap.String("bucket", bucket), zap.String("objectKey", key), zap.Error(err))
		return classifyS3Error("写入", bucket, key, err)
	}
	return nil
}

// Get 读取对象
func (s *S3Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error("读取", bucket, key, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取AWS S3对象内容失败 (%s/%s): %w: %w", bucket, key, ErrStoreUnavailable, err)
	}
	return b, nil
}

// Copy 复制对象
func (s *S3Store) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	if srcBucket == dstBucket && srcKey == dstKey {
		return nil
	}

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(url.PathEscape(srcBucket + "/" + srcKey)),
	})
	if err != nil {
		logger.Error("AWS S3复制对象失败",
			zap.String("src", srcBucket+"/"+srcKey),
			zap.String("dst", dstBucket+"/"+dstKey),
			zap.Error(err))
		return classifyS3Error("复制", srcBucket, srcKey, err)
	}
	return nil
}

// DeleteOne 删除对象
func (s *S3Store) DeleteOne(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		logger.Error("删除AWS S3对象失败", zap.String("bucket", bucket), zap.String("objectKey", key), zap.Error(err))
		return classifyS3Error("删除", bucket, key, err)
	}
	return nil
}

// DeleteMany 批量删除对象
func (s *S3Store) DeleteMany(ctx context.Context, bucket string, keys []string) error {
	for _, batch := range chunk(keys, maxDeleteBatch) {
		ids := make([]types.ObjectIdentifier, len(batch))
		for i, k := range batch {
			ids[i] = types.ObjectIdentifier{Key: aws.String(k)}
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return classifyS3Error("批量删除", bucket, batch[0], err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("批量删除AWS S3对象失败 (%s/%s): %w: %s",
				bucket, aws.ToString(first.Key), ErrStoreUnavailable, aws.ToString(first.Message))
		}
	}
	return nil
}

// ListAll 按前缀列举对象
func (s *S3Store) ListAll(ctx context.Context, bucket, prefix string) iter.Seq2[ObjectSummary, error] {
	return func(yield func(ObjectSummary, error) bool) {
		p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
			Prefix: aws.String(prefix),
		})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				yield(ObjectSummary{}, classifyS3Error("列举", bucket, prefix, err))
				return
			}
			for _, obj := range page.Contents {
				summary := ObjectSummary{
					Key:          aws.ToString(obj.Key),
					Size:         aws.ToInt64(obj.Size),
					LastModified: aws.ToTime(obj.LastModified),
				}
				if !yield(summary, nil) {
					return
				}
			}
		}
	}
}

// PresignGet 生成下载URL
func (s *S3Store) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		logger.Error("生成AWS S3下载URL失败", zap.String("objectKey", key), zap.Error(err))
		return "", fmt.Errorf("生成AWS S3下载URL失败: %w", err)
	}
	return req.URL, nil
}

// PresignPut 生成上传URL
func (s *S3Store) PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := s.presign.PresignPutObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		logger.Error("生成AWS S3上传URL失败", zap.String("objectKey", key), zap.Error(err))
		return "", fmt.Errorf("生成AWS S3上传URL失败: %w", err)
	}
	return req.URL, nil
}

func classifyS3Error(op, bucket, key string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var apiErr smithy.APIError
	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		return fmt.Errorf("AWS S3%s失败 (%s/%s): %w", op, bucket, key, ErrNotFound)
	case errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey"):
		return fmt.Errorf("AWS S3%s失败 (%s/%s): %w", op, bucket, key, ErrNotFound)
	}
	return fmt.Errorf("AWS S3%s失败 (%s/%s): %w: %w", op, bucket, key, ErrStoreUnavailable, err)
}
