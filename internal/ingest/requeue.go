package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/myysophia/replay-ingest/internal/db/models"
	"github.com/myysophia/replay-ingest/internal/logger"
	"github.com/myysophia/replay-ingest/internal/metrics"
	"github.com/myysophia/replay-ingest/internal/oss"
	"github.com/myysophia/replay-ingest/internal/stream"
	"github.com/myysophia/replay-ingest/internal/upload"
	"go.uber.org/zap"
)

// Requeuer 把原始上传重新发布到处理流
type Requeuer struct {
	store     oss.ObjectStore
	bucket    string
	publisher stream.Publisher
	metrics   *metrics.Metrics
}

// NewRequeuer bucket 为原始上传所在的存储桶
func NewRequeuer(store oss.ObjectStore, bucket string, publisher stream.Publisher, m *metrics.Metrics) *Requeuer {
	return &Requeuer{store: store, bucket: bucket, publisher: publisher, metrics: m}
}

// RequeueRawUploads 重新发布新上传区的全部日志，limit <= 0 表示不限制
// 用于部署期间暂停触发后补处理
func (r *Requeuer) RequeueRawUploads(ctx context.Context, attemptReprocessing bool, limit int) (int, error) {
	count := 0
	for raw, err := range upload.List(ctx, r.store, r.bucket, upload.NewPrefix) {
		if err != nil {
			return count, err
		}
		if limit > 0 && count >= limit {
			break
		}
		if err := r.publisher.Publish(ctx, raw, attemptReprocessing); err != nil {
			return count, fmt.Errorf("发布 %s 失败: %w", raw, err)
		}
		logger.Debug("已重新发布原始上传", zap.String("raw", raw.String()))
		count++
	}
	r.metrics.AddRequeued("raw", count)
	logger.Info("新上传区重新发布完成", zap.Int("count", count))
	return count, nil
}

// RequeueFailed 重新发布失败区中上传时间不早于 since 的日志，since 为零值时全部发布
func (r *Requeuer) RequeueFailed(ctx context.Context, since time.Time, attemptReprocessing bool) (int, error) {
	count := 0
	for raw, err := range upload.List(ctx, r.store, r.bucket, upload.FailedPrefix) {
		if err != nil {
			return count, err
		}
		if raw.Timestamp.Before(since) {
			continue
		}
		if err := r.publisher.Publish(ctx, raw, attemptReprocessing); err != nil {
			return count, fmt.Errorf("发布 %s 失败: %w", raw, err)
		}
		count++
	}
	r.metrics.AddRequeued("failed", count)
	logger.Info("失败区重新发布完成", zap.Int("count", count), zap.Time("since", since))
	return count, nil
}

// RequeueEvents 按持久区日志重新处理已有事件
func (r *Requeuer) RequeueEvents(ctx context.Context, events []models.UploadEvent) (int, error) {
	count := 0
	for _, e := range events {
		if e.LogKey == "" {
			logger.ForUpload(e.ShortID).Warn("事件没有持久区日志，无法重新处理")
			continue
		}
		raw, err := upload.New(r.store, e.LogBucket, e.LogKey)
		if err != nil {
			return count, err
		}
		if err := r.publisher.Publish(ctx, raw, true); err != nil {
			return count, fmt.Errorf("发布 %s 失败: %w", raw, err)
		}
		count++
	}
	r.metrics.AddRequeued("event", count)
	return count, nil
}
