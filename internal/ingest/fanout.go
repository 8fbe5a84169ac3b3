package ingest

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// FanOut 并发处理 items，limit <= 0 表示不限制并发
// 所有任务都会执行完，不因某个失败而取消其它任务，返回第一个错误
func FanOut[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error) error {
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, item := range items {
		g.Go(func() error {
			return fn(ctx, item)
		})
	}
	return g.Wait()
}
