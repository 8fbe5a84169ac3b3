package canary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/myysophia/replay-ingest/internal/config"
	"github.com/myysophia/replay-ingest/internal/db/models"
	"github.com/myysophia/replay-ingest/internal/db/repository"
	"github.com/myysophia/replay-ingest/internal/function"
	"github.com/myysophia/replay-ingest/internal/logger"
	"github.com/myysophia/replay-ingest/internal/metrics"
	"github.com/myysophia/replay-ingest/internal/scheduler"
	"go.uber.org/zap"
)

var (
	// ErrCanaryTimeout 等待时间内金丝雀上传数量不足
	ErrCanaryTimeout = errors.New("等待金丝雀上传超时")
	// ErrCanaryFailed 金丝雀上传出现失败终态
	ErrCanaryFailed = errors.New("金丝雀发布失败")
)

// 发布结果
const (
	OutcomePromoted = "promoted"
	OutcomeBypassed = "bypassed"
	OutcomeTimeout  = "timeout"
	OutcomeFailed   = "failed"
)

// Requeuer 把已有事件重新投递处理
type Requeuer interface {
	RequeueEvents(ctx context.Context, events []models.UploadEvent) (int, error)
}

// Options 发布配置
type Options struct {
	ProdAlias    string
	CanaryAlias  string
	MinUploads   int
	MaxWait      time.Duration
	PollInterval time.Duration
}

// OptionsFromConfig 从配置构造
func OptionsFromConfig(fn *config.FunctionConfig, c *config.CanaryConfig) Options {
	return Options{
		ProdAlias:    fn.ProdAlias,
		CanaryAlias:  fn.CanaryAlias,
		MinUploads:   c.MinUploads,
		MaxWait:      c.GetMaxWait(),
		PollInterval: c.GetPollInterval(),
	}
}

// Run 一次金丝雀发布
type Run struct {
	PeriodStart   time.Time
	ProdVersion   string
	CanaryVersion string
	NewVersion    string
	Bypassed      bool
	// Uploads 参与判定的金丝雀上传
	Uploads  []models.UploadEvent
	Failures []models.UploadEvent
	Requeued int
}

// Controller 金丝雀发布控制器
type Controller struct {
	deployer function.Deployer
	events   repository.UploadEventRepository
	requeuer Requeuer
	metrics  *metrics.Metrics
	opts     Options

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	mu    sync.Mutex
}

// NewController 创建控制器
func NewController(deployer function.Deployer, events repository.UploadEventRepository, requeuer Requeuer, m *metrics.Metrics, opts Options) *Controller {
	if opts.ProdAlias == "" {
		opts.ProdAlias = "PROD"
	}
	if opts.CanaryAlias == "" {
		opts.CanaryAlias = "CANARY"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	return &Controller{
		deployer: deployer,
		events:   events,
		requeuer: requeuer,
		metrics:  m,
		opts:     opts,
		now:      time.Now,
		sleep:    scheduler.Sleep,
	}
}

// Deploy 发布新版本，先指向金丝雀别名，满足条件后再指向生产别名
func (c *Controller) Deploy(ctx context.Context, bypass bool) (*Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	run := &Run{}
	var err error
	if run.ProdVersion, err = c.deployer.AliasVersion(ctx, c.opts.ProdAlias); err != nil {
		return nil, err
	}
	if run.CanaryVersion, err = c.deployer.AliasVersion(ctx, c.opts.CanaryAlias); err != nil {
		return nil, err
	}

	description := fmt.Sprintf("canary %s", c.now().UTC().Format(time.RFC3339))
	if run.NewVersion, err = c.deployer.PublishVersion(ctx, description); err != nil {
		return nil, err
	}
	if err := c.deployer.UpdateAlias(ctx, c.opts.CanaryAlias, run.NewVersion); err != nil {
		return nil, err
	}
	run.PeriodStart = c.now()

	log := logger.With(
		zap.String("prod_version", run.ProdVersion),
		zap.String("previous_canary", run.CanaryVersion),
		zap.String("new_version", run.NewVersion))
	log.Info("金丝雀别名已指向新版本")

	if !bypass {
		enabled, err := c.deployer.ConsumerEnabled(ctx)
		if err != nil {
			return run, err
		}
		if !enabled {
			log.Warn("处理流消费者已停用，跳过金丝雀验证")
			bypass = true
		}
	}
	if bypass {
		run.Bypassed = true
		if err := c.deployer.UpdateAlias(ctx, c.opts.ProdAlias, run.NewVersion); err != nil {
			return run, err
		}
		c.metrics.ObserveCanary(OutcomeBypassed)
		log.Info("已跳过金丝雀直接发布")
		return run, nil
	}

	uploads, waitErr := c.waitForUploads(ctx, run.PeriodStart)
	run.Uploads = uploads
	if waitErr != nil {
		if !errors.Is(waitErr, ErrCanaryTimeout) {
			return run, waitErr
		}
		log.Error("等待金丝雀上传超时", zap.Int("uploads", len(uploads)), zap.Int("required", c.opts.MinUploads))
		if err := c.abort(ctx, run); err != nil {
			return run, errors.Join(waitErr, err)
		}
		c.metrics.ObserveCanary(OutcomeTimeout)
		return run, waitErr
	}

	run.Failures = failures(uploads)
	if len(run.Failures) > 0 {
		log.Error("金丝雀上传出现失败", zap.Int("failures", len(run.Failures)), zap.Int("uploads", len(uploads)))
		if err := c.abort(ctx, run); err != nil {
			return run, errors.Join(ErrCanaryFailed, err)
		}
		c.metrics.ObserveCanary(OutcomeFailed)
		return run, fmt.Errorf("%w: %d/%d 个上传失败", ErrCanaryFailed, len(run.Failures), len(uploads))
	}

	if err := c.deployer.UpdateAlias(ctx, c.opts.ProdAlias, run.NewVersion); err != nil {
		return run, err
	}
	c.metrics.ObserveCanary(OutcomePromoted)
	log.Info("金丝雀验证通过，生产别名已更新", zap.Int("uploads", len(uploads)))
	return run, nil
}

// waitForUploads 轮询直到有足够的金丝雀上传结束处理
func (c *Controller) waitForUploads(ctx context.Context, since time.Time) ([]models.UploadEvent, error) {
	deadline := since.Add(c.opts.MaxWait)
	for {
		uploads, err := c.events.ListCanaryCompleted(ctx, since)
		if err != nil {
			return nil, err
		}
		if len(uploads) >= c.opts.MinUploads {
			return uploads, nil
		}
		if !c.now().Before(deadline) {
			return uploads, fmt.Errorf("%w: %d/%d", ErrCanaryTimeout, len(uploads), c.opts.MinUploads)
		}

		logger.Debug("等待金丝雀上传",
			zap.Int("uploads", len(uploads)),
			zap.Int("required", c.opts.MinUploads))
		if err := c.sleep(ctx, c.opts.PollInterval); err != nil {
			return uploads, err
		}
	}
}

// abort 金丝雀别名回退到生产版本，重新查询失败上传并重新投递
func (c *Controller) abort(ctx context.Context, run *Run) error {
	if err := c.deployer.UpdateAlias(ctx, c.opts.CanaryAlias, run.ProdVersion); err != nil {
		return fmt.Errorf("回退金丝雀别名失败: %w", err)
	}
	logger.Warn("金丝雀别名已回退", zap.String("version", run.ProdVersion))

	// 回退前可能又有上传失败
	uploads, err := c.events.ListCanaryCompleted(ctx, run.PeriodStart)
	if err != nil {
		return err
	}
	run.Failures = failures(uploads)
	if len(run.Failures) == 0 {
		return nil
	}

	n, err := c.requeuer.RequeueEvents(ctx, run.Failures)
	run.Requeued = n
	if err != nil {
		return fmt.Errorf("重新投递失败上传失败: %w", err)
	}
	logger.Info("失败的金丝雀上传已重新投递", zap.Int("count", n))
	return nil
}

func failures(uploads []models.UploadEvent) []models.UploadEvent {
	var out []models.UploadEvent
	for _, u := range uploads {
		if !u.Status.Acceptable() {
			out = append(out, u)
		}
	}
	return out
}
