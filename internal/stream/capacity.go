package stream

import (
	"context"
	"fmt"
	"math/bits"
	"sync"
	"time"

	"github.com/myysophia/replay-ingest/internal/config"
	"github.com/myysophia/replay-ingest/internal/logger"
	"github.com/myysophia/replay-ingest/internal/metrics"
	"github.com/myysophia/replay-ingest/internal/oss"
	"github.com/myysophia/replay-ingest/internal/scheduler"
	"go.uber.org/zap"
)

// ControllerOptions 容量控制参数
type ControllerOptions struct {
	StreamName        string
	SLASeconds        int
	MinShards         int
	MaxShards         int
	ReadyMaxAttempts  int
	ReadyPollInterval time.Duration
	LockTTL           time.Duration
}

// OptionsFromConfig 从配置生成控制参数
func OptionsFromConfig(cfg *config.StreamConfig) ControllerOptions {
	return ControllerOptions{
		StreamName:        cfg.Name,
		SLASeconds:        cfg.SLASeconds,
		MinShards:         cfg.MinShards,
		MaxShards:         cfg.MaxShards,
		ReadyMaxAttempts:  cfg.ReadyMaxAttempts,
		ReadyPollInterval: cfg.GetReadyPollInterval(),
		LockTTL:           cfg.GetResizeLockTTL(),
	}
}

// Controller 按积压量把流调整到 2 的幂个分片
type Controller struct {
	api     ShardAPI
	locker  Locker
	opts    ControllerOptions
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error

	// 同一进程内串行
	mu sync.Mutex
}

// NewController 创建容量控制器，locker 为 nil 时只做进程内互斥
func NewController(api ShardAPI, locker Locker, opts ControllerOptions, m *metrics.Metrics) *Controller {
	if opts.MinShards <= 0 {
		opts.MinShards = 1
	}
	if opts.MaxShards < opts.MinShards {
		opts.MaxShards = opts.MinShards
	}
	if opts.ReadyMaxAttempts <= 0 {
		opts.ReadyMaxAttempts = 15
	}
	if opts.ReadyPollInterval <= 0 {
		opts.ReadyPollInterval = 4 * time.Second
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	return &Controller{
		api:     api,
		locker:  locker,
		opts:    opts,
		metrics: m,
		sleep:   scheduler.Sleep,
	}
}

// Target 计算满足 SLA 的目标分片数
func (c *Controller) Target(backlog int, avgSeconds float64) int {
	required := ShardsRequiredForSLA(backlog, avgSeconds, c.opts.SLASeconds)
	return ClampTarget(BaseTwoTarget(required), c.opts.MinShards, c.opts.MaxShards)
}

// Resize 根据积压量和平均处理耗时调整分片数，返回目标分片数
func (c *Controller) Resize(ctx context.Context, backlog int, avgSeconds float64) (int, error) {
	log := logger.With(zap.String("stream", c.opts.StreamName))
	log.Info("开始调整流分片",
		zap.Int("backlog", backlog),
		zap.Float64("avg_seconds", avgSeconds),
		zap.Int("sla_seconds", c.opts.SLASeconds))

	target := c.Target(backlog, avgSeconds)
	log.Info("目标分片数", zap.Int("target", target))

	return target, c.ResizeToSize(ctx, target)
}

// ResizeForBacklog 统计新上传区积压并按平均处理耗时调整分片
func (c *Controller) ResizeForBacklog(ctx context.Context, store oss.ObjectStore, bucket string, durations DurationSource) (int, error) {
	backlog, err := CountBacklog(ctx, store, bucket)
	if err != nil {
		return 0, err
	}
	avg, err := durations.AverageProcessingSeconds(ctx)
	if err != nil {
		return 0, fmt.Errorf("查询平均处理耗时失败: %w", err)
	}
	return c.Resize(ctx, backlog, avg)
}

// WaitForActive 轮询直到流为 ACTIVE，最多 ReadyMaxAttempts 次
func (c *Controller) WaitForActive(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		status, err := c.api.StreamStatus(ctx)
		if err != nil {
			return fmt.Errorf("查询流状态失败: %w", err)
		}
		if status == StatusActive {
			return nil
		}
		if attempt >= c.opts.ReadyMaxAttempts {
			return fmt.Errorf("%w: %s 状态为 %s", ErrStreamNotActive, c.opts.StreamName, status)
		}
		logger.Debug("等待流进入 ACTIVE",
			zap.String("stream", c.opts.StreamName),
			zap.String("status", status),
			zap.Int("attempt", attempt+1))
		if err := c.sleep(ctx, c.opts.ReadyPollInterval); err != nil {
			return err
		}
	}
}

// OpenShards 等待流可用后列出开放分片
func (c *Controller) OpenShards(ctx context.Context) ([]Shard, error) {
	if err := c.WaitForActive(ctx); err != nil {
		return nil, err
	}
	shards, err := c.api.ListShards(ctx)
	if err != nil {
		return nil, fmt.Errorf("列出分片失败: %w", err)
	}
	return OpenOnly(shards), nil
}

// CurrentSize 当前开放分片数
func (c *Controller) CurrentSize(ctx context.Context) (int, error) {
	open, err := c.OpenShards(ctx)
	if err != nil {
		return 0, err
	}
	return len(open), nil
}

// maxRounds 从 min 到 max 需要的翻倍次数加一
func (c *Controller) maxRounds() int {
	ratio := c.opts.MaxShards / c.opts.MinShards
	if ratio < 1 {
		ratio = 1
	}
	return bits.Len(uint(ratio))
}

// ResizeToSize 通过多轮 split 或 merge 收敛到 target
func (c *Controller) ResizeToSize(ctx context.Context, target int) error {
	if !IsBaseTwo(target) {
		return fmt.Errorf("%w: %d 不是 2 的幂", ErrInvalidTarget, target)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.locker != nil {
		release, err := c.locker.Acquire(ctx, "resize:"+c.opts.StreamName, c.opts.LockTTL)
		if err != nil {
			return err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("释放调整分片锁失败", zap.String("stream", c.opts.StreamName), zap.Error(err))
			}
		}()
	}

	log := logger.With(zap.String("stream", c.opts.StreamName), zap.Int("target", target))

	current, err := c.CurrentSize(ctx)
	if err != nil {
		return err
	}
	log.Info("当前分片数", zap.Int("current", current))

	limit := c.maxRounds()
	for round := 1; current != target; round++ {
		if round > limit {
			return fmt.Errorf("%w: %d 轮后仍为 %d 个分片", ErrResizeStalled, limit, current)
		}
		log.Info("开始调整轮次", zap.Int("round", round), zap.Int("current", current))

		if target > current {
			err = c.splitRound(ctx)
		} else {
			err = c.mergeRound(ctx)
		}
		if err != nil {
			return err
		}

		next, err := c.CurrentSize(ctx)
		if err != nil {
			return err
		}
		if next == current {
			return fmt.Errorf("%w: 第 %d 轮后分片数仍为 %d", ErrResizeStalled, round, current)
		}
		current = next
		c.metrics.SetOpenShards(current)
	}

	log.Info("分片数已达到目标")
	return nil
}

// splitRound 把本轮开始时的每个开放分片一分为二，ID 小的先分
func (c *Controller) splitRound(ctx context.Context) error {
	pending, err := c.OpenShards(ctx)
	if err != nil {
		return err
	}
	logger.Info("本轮需要拆分的分片", zap.Int("shards", len(pending)))

	for _, candidate := range pending {
		// 每次操作前重新获取开放分片
		open, err := c.OpenShards(ctx)
		if err != nil {
			return err
		}
		shard, ok := findShard(open, candidate.ID)
		if !ok {
			logger.Warn("分片已关闭，跳过", zap.String("shard", candidate.ID))
			continue
		}

		point, ok := SplitPoint(shard)
		if !ok {
			logger.Warn("分片哈希范围无法拆分", zap.String("shard", shard.ID))
			continue
		}

		logger.Info("拆分分片",
			zap.String("shard", shard.ID),
			zap.String("starting_hash_key", shard.StartingHashKey.String()),
			zap.String("ending_hash_key", shard.EndingHashKey.String()),
			zap.String("split_point", point.String()))
		if err := c.api.SplitShard(ctx, shard.ID, point); err != nil {
			return fmt.Errorf("拆分分片 %s 失败: %w", shard.ID, err)
		}
		c.metrics.IncResize("split")
	}
	return nil
}

// mergeRound 把相邻分片两两合并
func (c *Controller) mergeRound(ctx context.Context) error {
	open, err := c.OpenShards(ctx)
	if err != nil {
		return err
	}
	pairs, err := PrepareForMerging(open)
	if err != nil {
		return err
	}
	logger.Info("本轮需要合并的分片对", zap.Int("pairs", len(pairs)))

	for _, pair := range pairs {
		current, err := c.OpenShards(ctx)
		if err != nil {
			return err
		}
		_, firstOpen := findShard(current, pair.First.ID)
		_, secondOpen := findShard(current, pair.Second.ID)
		if !firstOpen || !secondOpen {
			logger.Warn("分片已关闭，跳过合并",
				zap.String("shard", pair.First.ID),
				zap.String("adjacent_shard", pair.Second.ID))
			continue
		}

		logger.Info("合并分片",
			zap.String("shard", pair.First.ID),
			zap.String("adjacent_shard", pair.Second.ID))
		if err := c.api.MergeShards(ctx, pair.First.ID, pair.Second.ID); err != nil {
			return fmt.Errorf("合并分片 %s 和 %s 失败: %w", pair.First.ID, pair.Second.ID, err)
		}
		c.metrics.IncResize("merge")
	}
	return nil
}

func findShard(shards []Shard, id string) (Shard, bool) {
	for _, s := range shards {
		if s.ID == id {
			return s, true
		}
	}
	return Shard{}, false
}
