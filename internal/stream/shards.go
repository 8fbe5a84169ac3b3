package stream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"

	"github.com/myysophia/replay-ingest/internal/logger"
	"go.uber.org/zap"
)

var (
	// ErrStreamNotActive 等待流变为 ACTIVE 超时
	ErrStreamNotActive = errors.New("流未进入 ACTIVE 状态")
	// ErrResizeStalled 调整分片没有进展或超过轮数上限
	ErrResizeStalled = errors.New("调整分片数停滞")
	// ErrInvalidTarget 目标分片数不是 2 的幂
	ErrInvalidTarget = errors.New("目标分片数无效")
	// ErrShardsNotAdjacent 配对的分片哈希范围不相邻
	ErrShardsNotAdjacent = errors.New("分片哈希范围不相邻")
)

// StatusActive 流可以接受 split / merge 的状态
const StatusActive = "ACTIVE"

// Shard 流的一个分片
type Shard struct {
	ID              string
	StartingHashKey *big.Int
	EndingHashKey   *big.Int
	// 已关闭的分片只保留用于读完剩余数据
	Open bool
}

// ShardPair 一次 merge 的两个相邻分片
type ShardPair struct {
	First  Shard
	Second Shard
}

// ShardAPI 分片管理接口，一个实例绑定一个流
type ShardAPI interface {
	StreamStatus(ctx context.Context) (string, error)
	ListShards(ctx context.Context) ([]Shard, error)
	SplitShard(ctx context.Context, shardID string, newStartingHashKey *big.Int) error
	MergeShards(ctx context.Context, shardID, adjacentShardID string) error
}

// ShardsRequiredForSLA 在 SLA 内处理完积压所需的分片数
func ShardsRequiredForSLA(backlog int, avgSeconds float64, slaSeconds int) int {
	if backlog <= 0 || avgSeconds <= 0 || slaSeconds <= 0 {
		return 0
	}
	return int(math.Ceil(float64(backlog) * avgSeconds / float64(slaSeconds)))
}

// BaseTwoTarget 向上取到 2 的幂，n <= 1 时为 1
func BaseTwoTarget(n int) int {
	if n <= 1 {
		return 1
	}
	target := 1
	for target < n {
		target <<= 1
	}
	return target
}

// ClampTarget 限制在 [min, max] 之间
func ClampTarget(n, min, max int) int {
	if n < min {
		n = min
	}
	if n > max {
		n = max
	}
	return n
}

// IsBaseTwo 是否为 2 的幂
func IsBaseTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// OpenOnly 过滤出开放分片，按 ID 排序
func OpenOnly(shards []Shard) []Shard {
	open := make([]Shard, 0, len(shards))
	for _, s := range shards {
		if s.Open {
			open = append(open, s)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].ID < open[j].ID })
	return open
}

// SplitPoint 新子分片的起始哈希键 floor((start+end)/2)，范围无法再分时返回 false
func SplitPoint(s Shard) (*big.Int, bool) {
	if s.StartingHashKey == nil || s.EndingHashKey == nil || s.StartingHashKey.Cmp(s.EndingHashKey) >= 0 {
		return nil, false
	}
	mid := new(big.Int).Add(s.StartingHashKey, s.EndingHashKey)
	mid.Rsh(mid, 1)
	// 新分片必须从 start 之后开始
	if mid.Cmp(s.StartingHashKey) <= 0 {
		mid.Add(s.StartingHashKey, big.NewInt(1))
	}
	return mid, true
}

// Adjacent 第一个分片的结束哈希键 + 1 等于第二个的起始哈希键
func Adjacent(first, second Shard) bool {
	next := new(big.Int).Add(first.EndingHashKey, big.NewInt(1))
	return next.Cmp(second.StartingHashKey) == 0
}

// PrepareForMerging 按结束哈希键排序后两两配对。
// 少于 2 个或数量为奇数时返回空结果。
func PrepareForMerging(shards []Shard) ([]ShardPair, error) {
	if len(shards) < 2 {
		logger.Info("分片少于 2 个，不做合并", zap.Int("shards", len(shards)))
		return nil, nil
	}
	if len(shards)%2 != 0 {
		logger.Info("分片数为奇数，不做合并", zap.Int("shards", len(shards)))
		return nil, nil
	}

	sorted := make([]Shard, len(shards))
	copy(sorted, shards)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].EndingHashKey.Cmp(sorted[j].EndingHashKey) < 0
	})

	pairs := make([]ShardPair, 0, len(sorted)/2)
	for i := 0; i < len(sorted); i += 2 {
		first, second := sorted[i], sorted[i+1]
		if !Adjacent(first, second) {
			return nil, fmt.Errorf("%w: %s, %s", ErrShardsNotAdjacent, first.ID, second.ID)
		}
		pairs = append(pairs, ShardPair{First: first, Second: second})
	}
	return pairs, nil
}
