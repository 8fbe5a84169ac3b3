package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/myysophia/replay-ingest/internal/logger"
	"go.uber.org/zap"
)

// 计算下次执行时间失败后的重试间隔
const retryDelay = 30 * time.Second

// Task 定时任务
type Task func(ctx context.Context) error

type job struct {
	name string
	expr string
	task Task

	mu      sync.Mutex
	running bool
}

// Scheduler 按 cron 表达式执行任务，同一任务不会重叠执行
type Scheduler struct {
	jobs []*job
	now  func() time.Time
}

// New 创建调度器
func New() *Scheduler {
	return &Scheduler{now: time.Now}
}

// Add 注册任务，expr 为空时不注册
func (s *Scheduler) Add(name, expr string, task Task) error {
	if expr == "" {
		logger.Info("定时任务未配置，跳过", zap.String("job", name))
		return nil
	}
	if !gronx.New().IsValid(expr) {
		return fmt.Errorf("定时任务 %s 的 cron 表达式无效: %q", name, expr)
	}
	s.jobs = append(s.jobs, &job{name: name, expr: expr, task: task})
	return nil
}

// Jobs 已注册的任务名
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.name)
	}
	return names
}

// Run 阻塞执行所有任务，ctx 取消后等待正在执行的任务结束
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, j)
		}()
	}
	wg.Wait()
}

// RunNow 立即执行指定任务
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for _, j := range s.jobs {
		if j.name == name {
			_, err := j.trigger(ctx)
			return err
		}
	}
	return fmt.Errorf("定时任务不存在: %s", name)
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	log := logger.With(zap.String("job", j.name), zap.String("cron", j.expr))
	log.Info("定时任务已启动")

	for {
		next, err := gronx.NextTickAfter(j.expr, s.now(), false)
		if err != nil {
			log.Error("计算下次执行时间失败", zap.Error(err))
			if !wait(ctx, retryDelay) {
				return
			}
			continue
		}

		if !wait(ctx, next.Sub(s.now())) {
			log.Info("定时任务已停止")
			return
		}

		start := s.now()
		ran, err := j.trigger(ctx)
		switch {
		case !ran:
			log.Warn("上一次执行尚未结束，跳过本次")
		case err != nil:
			log.Error("定时任务执行失败", zap.Duration("elapsed", s.now().Sub(start)), zap.Error(err))
		default:
			log.Info("定时任务执行完成", zap.Duration("elapsed", s.now().Sub(start)))
		}
	}
}

// trigger 执行任务，已有执行在进行时返回 false
func (j *job) trigger(ctx context.Context) (bool, error) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return false, nil
	}
	j.running = true
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()
	return true, j.task(ctx)
}

// wait 等待 d，ctx 取消时返回 false
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	return Sleep(ctx, d) == nil
}

// Sleep 等待 d，ctx 先结束时返回 ctx.Err()
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
