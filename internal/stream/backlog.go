package stream

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/myysophia/replay-ingest/internal/logger"
	"github.com/myysophia/replay-ingest/internal/oss"
	"github.com/myysophia/replay-ingest/internal/upload"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"
)

// CountBacklog 新上传区中尚未处理的日志数量
func CountBacklog(ctx context.Context, store oss.ObjectStore, bucket string) (int, error) {
	count := 0
	for obj, err := range store.ListAll(ctx, bucket, upload.NewPrefix) {
		if err != nil {
			return 0, fmt.Errorf("统计积压失败: %w", err)
		}
		if strings.HasSuffix(obj.Key, "."+string(upload.KindLog)) {
			count++
		}
	}
	return count, nil
}

// DurationSource 单个上传的平均处理耗时
type DurationSource interface {
	AverageProcessingSeconds(ctx context.Context) (float64, error)
}

// StaticDuration 固定耗时
type StaticDuration float64

// AverageProcessingSeconds 返回固定值
func (d StaticDuration) AverageProcessingSeconds(context.Context) (float64, error) {
	return float64(d), nil
}

// PrometheusDuration 从 Prometheus 查询处理耗时直方图，查询失败或无数据时使用默认值
type PrometheusDuration struct {
	api      v1.API
	query    string
	fallback float64
}

// NewPrometheusDuration 创建耗时查询
func NewPrometheusDuration(address, namespace string, fallback float64) (*PrometheusDuration, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("创建 Prometheus 客户端失败: %w", err)
	}
	return NewPrometheusDurationWithAPI(v1.NewAPI(client), namespace, fallback), nil
}

// NewPrometheusDurationWithAPI 使用已有的查询接口
func NewPrometheusDurationWithAPI(promAPI v1.API, namespace string, fallback float64) *PrometheusDuration {
	metric := namespace + "_ingest_processing_duration_seconds"
	return &PrometheusDuration{
		api:      promAPI,
		query:    fmt.Sprintf("sum(rate(%s_sum[1h])) / sum(rate(%s_count[1h]))", metric, metric),
		fallback: fallback,
	}
}

// AverageProcessingSeconds 查询最近一小时的平均处理耗时
func (p *PrometheusDuration) AverageProcessingSeconds(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	value, warnings, err := p.api.Query(ctx, p.query, time.Now())
	if err != nil {
		logger.Warn("查询平均处理耗时失败，使用默认值", zap.Float64("fallback", p.fallback), zap.Error(err))
		return p.fallback, nil
	}
	if len(warnings) > 0 {
		logger.Debug("Prometheus 查询告警", zap.Strings("warnings", warnings))
	}

	vector, ok := value.(model.Vector)
	if !ok || len(vector) == 0 {
		return p.fallback, nil
	}
	avg := float64(vector[0].Value)
	if math.IsNaN(avg) || math.IsInf(avg, 0) || avg <= 0 {
		return p.fallback, nil
	}
	return avg, nil
}
