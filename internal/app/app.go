package app

import (
	"context"
	"fmt"

	"github.com/myysophia/replay-ingest/internal/auth"
	"github.com/myysophia/replay-ingest/internal/canary"
	"github.com/myysophia/replay-ingest/internal/config"
	"github.com/myysophia/replay-ingest/internal/db"
	"github.com/myysophia/replay-ingest/internal/db/repository"
	"github.com/myysophia/replay-ingest/internal/function"
	"github.com/myysophia/replay-ingest/internal/ingest"
	"github.com/myysophia/replay-ingest/internal/logger"
	"github.com/myysophia/replay-ingest/internal/metrics"
	"github.com/myysophia/replay-ingest/internal/oss"
	"github.com/myysophia/replay-ingest/internal/reaper"
	"github.com/myysophia/replay-ingest/internal/stream"
	"github.com/myysophia/replay-ingest/internal/validation"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App 按需创建各入口用到的客户端，每个客户端只创建一次
type App struct {
	Cfg     *config.Config
	Metrics *metrics.Metrics
	Store   oss.ObjectStore

	conn      *gorm.DB
	events    repository.UploadEventRepository
	publisher stream.Publisher
	closers   []func() error
}

// New 加载配置、初始化日志并创建对象存储
func New(ctx context.Context, configPath, env string) (*App, error) {
	cfg, err := config.LoadConfigWithEnv(configPath, env)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if err := logger.InitLogger(&cfg.Log); err != nil {
		return nil, fmt.Errorf("初始化日志系统失败: %w", err)
	}
	logger.Info("配置加载成功", zap.String("env", cfg.App.Env), zap.String("stream", cfg.Stream.Backend))

	store, err := oss.NewStoreFactory(&cfg.Storage).GetDefaultStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("创建对象存储失败: %w", err)
	}

	return &App{
		Cfg:     cfg,
		Metrics: metrics.New(prometheus.DefaultRegisterer, cfg.Metrics.Namespace),
		Store:   store,
	}, nil
}

// Close 释放已创建的客户端
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("释放资源失败", zap.Error(err))
		}
	}
	_ = logger.Sync()
}

// Database 连接数据库
func (a *App) Database() (*gorm.DB, error) {
	if a.conn != nil {
		return a.conn, nil
	}
	if err := db.Init(&a.Cfg.Database); err != nil {
		return nil, err
	}
	a.conn = db.GetDB()
	a.closers = append(a.closers, db.Close)
	return a.conn, nil
}

// UploadEvents 上传事件仓库
func (a *App) UploadEvents() (repository.UploadEventRepository, error) {
	if a.events != nil {
		return a.events, nil
	}
	conn, err := a.Database()
	if err != nil {
		return nil, err
	}
	a.events = repository.NewUploadEventRepository(conn)
	return a.events, nil
}

// StreamPublisher 按 stream.backend 创建投递器
func (a *App) StreamPublisher(ctx context.Context) (stream.Publisher, error) {
	if a.publisher != nil {
		return a.publisher, nil
	}
	switch a.Cfg.Stream.Backend {
	case stream.BackendKinesis:
		client, err := stream.NewKinesisClient(ctx, &a.Cfg.Stream.Kinesis)
		if err != nil {
			return nil, err
		}
		a.publisher = stream.NewKinesisPublisher(client, a.Cfg.Stream.Name)
	case stream.BackendKafka:
		publisher, err := stream.NewKafkaPublisher(a.Cfg.Stream.Kafka.Brokers, a.Cfg.Stream.Name)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, publisher.Close)
		a.publisher = publisher
	default:
		return nil, fmt.Errorf("不支持的处理流: %s", a.Cfg.Stream.Backend)
	}
	return a.publisher, nil
}

// Requeuer 重新投递器
func (a *App) Requeuer(ctx context.Context) (*ingest.Requeuer, error) {
	publisher, err := a.StreamPublisher(ctx)
	if err != nil {
		return nil, err
	}
	return ingest.NewRequeuer(a.Store, a.Cfg.Storage.RawBucket, publisher, a.Metrics), nil
}

// Processor invokedAlias 为空时使用配置中的 ingest.invoked_alias
func (a *App) Processor(ctx context.Context, invokedAlias string) (*ingest.Processor, error) {
	events, err := a.UploadEvents()
	if err != nil {
		return nil, err
	}
	validator, err := validation.NewMetadataValidator()
	if err != nil {
		return nil, err
	}

	opts := ingest.OptionsFromConfig(a.Cfg)
	if invokedAlias != "" {
		opts.InvokedAlias = invokedAlias
	}
	qualifier := opts.InvokedAlias
	if qualifier == "" {
		qualifier = a.Cfg.Function.ProdAlias
	}
	invoker, err := function.NewInvoker(ctx, &a.Cfg.Function, qualifier)
	if err != nil {
		return nil, err
	}

	return ingest.NewProcessor(
		a.Store,
		events,
		auth.NewTokenResolver(a.conn, 0, 0),
		auth.NewAPIKeyResolver(a.conn, 0, 0),
		validator,
		invoker,
		a.Metrics,
		opts,
	), nil
}

// Handler 批量处理入口
func (a *App) Handler(ctx context.Context, invokedAlias string) (*ingest.Handler, error) {
	p, err := a.Processor(ctx, invokedAlias)
	if err != nil {
		return nil, err
	}
	return ingest.NewHandler(p, a.Cfg.Ingest.Concurrency), nil
}

// Capacity 只有 Kinesis 支持调整分片
func (a *App) Capacity(ctx context.Context) (*stream.Controller, error) {
	if a.Cfg.Stream.Backend != stream.BackendKinesis {
		return nil, fmt.Errorf("处理流 %s 不支持调整分片", a.Cfg.Stream.Backend)
	}
	client, err := stream.NewKinesisClient(ctx, &a.Cfg.Stream.Kinesis)
	if err != nil {
		return nil, err
	}

	var locker stream.Locker
	if a.Cfg.Redis.Enabled {
		rdb, err := stream.ConnectRedis(a.Cfg.Redis.URL, a.Cfg.Redis.Addr)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		locker = stream.NewRedisLocker(rdb)
	}

	return stream.NewController(
		stream.NewKinesisShards(client, a.Cfg.Stream.Name),
		locker,
		stream.OptionsFromConfig(&a.Cfg.Stream),
		a.Metrics,
	), nil
}

// Durations 未配置 Prometheus 时使用默认耗时
func (a *App) Durations() (stream.DurationSource, error) {
	if a.Cfg.Metrics.PrometheusURL == "" {
		return stream.StaticDuration(a.Cfg.Metrics.DefaultProcessingSeconds), nil
	}
	return stream.NewPrometheusDuration(a.Cfg.Metrics.PrometheusURL, a.Cfg.Metrics.Namespace, a.Cfg.Metrics.DefaultProcessingSeconds)
}

// ResizeStream 按积压量调整分片
func (a *App) ResizeStream(ctx context.Context) (int, error) {
	controller, err := a.Capacity(ctx)
	if err != nil {
		return 0, err
	}
	durations, err := a.Durations()
	if err != nil {
		return 0, err
	}
	return controller.ResizeForBacklog(ctx, a.Store, a.Cfg.Storage.RawBucket, durations)
}

// Deployer 处理函数的版本管理
func (a *App) Deployer(ctx context.Context) (function.Deployer, error) {
	return function.NewDeployer(ctx, &a.Cfg.Function)
}

// Canary 金丝雀发布控制器
func (a *App) Canary(ctx context.Context) (*canary.Controller, error) {
	deployer, err := a.Deployer(ctx)
	if err != nil {
		return nil, err
	}
	events, err := a.UploadEvents()
	if err != nil {
		return nil, err
	}
	requeuer, err := a.Requeuer(ctx)
	if err != nil {
		return nil, err
	}
	opts := canary.OptionsFromConfig(&a.Cfg.Function, &a.Cfg.Canary)
	return canary.NewController(deployer, events, requeuer, a.Metrics, opts), nil
}

// Reaper 孤立描述文件清理
func (a *App) Reaper() (*reaper.Reaper, error) {
	events, err := a.UploadEvents()
	if err != nil {
		return nil, err
	}
	return reaper.New(a.Store, a.Cfg.Storage.RawBucket, events, a.Metrics, a.Cfg.Reaper.DelayDays), nil
}

// Conn 已建立的数据库连接，未连接时为 nil
func (a *App) Conn() *gorm.DB {
	return a.conn
}
