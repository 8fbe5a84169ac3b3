package mocks

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/myysophia/replay-ingest/internal/stream"
)

// FakeStream 内存中的分片流，split / merge 后短暂处于 UPDATING
type FakeStream struct {
	mu       sync.Mutex
	shards   []stream.Shard
	nextID   int
	updating int

	// UpdatingPolls 每次变更后 StreamStatus 返回 UPDATING 的次数
	UpdatingPolls int
	Splits        []string
	Merges        [][2]string
}

// MaxHashKey 2^128 - 1
var MaxHashKey = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// NewFakeStream 创建 n 个开放分片均分哈希空间的流，n 需为 2 的幂
func NewFakeStream(n int) *FakeStream {
	f := &FakeStream{}
	width := new(big.Int).Div(new(big.Int).Add(MaxHashKey, big.NewInt(1)), big.NewInt(int64(n)))
	start := big.NewInt(0)
	for i := 0; i < n; i++ {
		end := new(big.Int).Sub(new(big.Int).Add(start, width), big.NewInt(1))
		if i == n-1 {
			end = new(big.Int).Set(MaxHashKey)
		}
		f.add(start, end)
		start = new(big.Int).Add(end, big.NewInt(1))
	}
	return f
}

func (f *FakeStream) add(start, end *big.Int) stream.Shard {
	s := stream.Shard{
		ID:              fmt.Sprintf("shardId-%012d", f.nextID),
		StartingHashKey: new(big.Int).Set(start),
		EndingHashKey:   new(big.Int).Set(end),
		Open:            true,
	}
	f.nextID++
	f.shards = append(f.shards, s)
	return s
}

func (f *FakeStream) find(id string) (int, error) {
	for i, s := range f.shards {
		if s.ID == id {
			if !s.Open {
				return 0, fmt.Errorf("shard %s is closed", id)
			}
			return i, nil
		}
	}
	return 0, fmt.Errorf("shard %s not found", id)
}

// StreamStatus 返回 ACTIVE 或 UPDATING
func (f *FakeStream) StreamStatus(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updating > 0 {
		f.updating--
		return "UPDATING", nil
	}
	return stream.StatusActive, nil
}

// ListShards 返回全部分片
func (f *FakeStream) ListShards(context.Context) ([]stream.Shard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stream.Shard, len(f.shards))
	copy(out, f.shards)
	return out, nil
}

// SplitShard 关闭父分片并创建两个子分片
func (f *FakeStream) SplitShard(_ context.Context, shardID string, point *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updating > 0 {
		return fmt.Errorf("stream is updating")
	}
	i, err := f.find(shardID)
	if err != nil {
		return err
	}
	parent := f.shards[i]
	if point.Cmp(parent.StartingHashKey) <= 0 || point.Cmp(parent.EndingHashKey) > 0 {
		return fmt.Errorf("invalid split point %s", point)
	}
	f.shards[i].Open = false
	f.add(parent.StartingHashKey, new(big.Int).Sub(point, big.NewInt(1)))
	f.add(point, parent.EndingHashKey)
	f.Splits = append(f.Splits, shardID)
	f.updating = f.UpdatingPolls
	return nil
}

// MergeShards 关闭两个相邻分片并创建合并后的分片
func (f *FakeStream) MergeShards(_ context.Context, shardID, adjacentShardID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updating > 0 {
		return fmt.Errorf("stream is updating")
	}
	i, err := f.find(shardID)
	if err != nil {
		return err
	}
	j, err := f.find(adjacentShardID)
	if err != nil {
		return err
	}
	first, second := f.shards[i], f.shards[j]
	if !stream.Adjacent(first, second) {
		return fmt.Errorf("shards %s and %s are not adjacent", shardID, adjacentShardID)
	}
	f.shards[i].Open = false
	f.shards[j].Open = false
	f.add(first.StartingHashKey, second.EndingHashKey)
	f.Merges = append(f.Merges, [2]string{shardID, adjacentShardID})
	f.updating = f.UpdatingPolls
	return nil
}

// OpenCount 开放分片数
func (f *FakeStream) OpenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.shards {
		if s.Open {
			n++
		}
	}
	return n
}
