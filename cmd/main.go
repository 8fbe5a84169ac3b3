package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/myysophia/replay-ingest/internal/api"
	"github.com/myysophia/replay-ingest/internal/app"
	"github.com/myysophia/replay-ingest/internal/auth"
	"github.com/myysophia/replay-ingest/internal/db"
	"github.com/myysophia/replay-ingest/internal/logger"
	"github.com/myysophia/replay-ingest/internal/scheduler"
	"github.com/myysophia/replay-ingest/internal/stream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	env        string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "replay-ingest",
		Short:         "回放日志上传与处理流水线",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs", "配置文件或目录")
	rootCmd.PersistentFlags().StringVarP(&opts.env, "env", "e", os.Getenv("APP_ENV"), "运行环境 dev/test/prod")

	rootCmd.AddCommand(
		newServeCommand(opts),
		newConsumeCommand(opts),
		newResizeStreamCommand(opts),
		newRequeueRawUploadsCommand(opts),
		newRequeueFailedCommand(opts),
		newToggleConsumerCommand(opts),
		newPromoteCommand(opts),
		newReapOrphansCommand(opts),
		newMigrateCommand(opts),
		newHashPasswordCommand(),
	)
	return rootCmd
}

// withApp 加载配置并在命令结束后释放资源，收到 SIGINT/SIGTERM 时取消 ctx
func withApp(opts *rootOptions, run func(ctx context.Context, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, opts.configPath, opts.env)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := run(ctx, a, args); err != nil {
			logger.Error("命令执行失败", zap.String("command", cmd.Name()), zap.Error(err))
			return err
		}
		return nil
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动上传入口、运维接口和定时任务",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app.App, _ []string) error {
			events, err := a.UploadEvents()
			if err != nil {
				return err
			}

			sched := scheduler.New()
			if a.Cfg.Stream.Backend == stream.BackendKinesis {
				err = sched.Add("resize-stream", a.Cfg.Stream.ResizeCron, func(ctx context.Context) error {
					_, err := a.ResizeStream(ctx)
					return err
				})
				if err != nil {
					return err
				}
			}
			err = sched.Add("reap-orphans", a.Cfg.Reaper.Cron, func(ctx context.Context) error {
				r, err := a.Reaper()
				if err != nil {
					return err
				}
				_, err = r.Run(ctx)
				return err
			})
			if err != nil {
				return err
			}

			router := api.SetupRouter(a.Cfg, a.Store, events, a.Conn(), prometheus.DefaultGatherer)
			server := &http.Server{
				Addr:         fmt.Sprintf("%s:%d", a.Cfg.App.Host, a.Cfg.App.Port),
				Handler:      router,
				ReadTimeout:  time.Duration(a.Cfg.App.ReadTimeout) * time.Second,
				WriteTimeout: time.Duration(a.Cfg.App.WriteTimeout) * time.Second,
				IdleTimeout:  time.Duration(a.Cfg.App.IdleTimeout) * time.Second,
			}

			schedDone := make(chan struct{})
			go func() {
				defer close(schedDone)
				sched.Run(ctx)
			}()

			serverErr := make(chan error, 1)
			go func() {
				logger.Info("HTTP服务器启动成功", zap.String("addr", server.Addr), zap.Strings("jobs", sched.Jobs()))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
				close(serverErr)
			}()

			select {
			case <-ctx.Done():
			case err := <-serverErr:
				if err != nil {
					return fmt.Errorf("HTTP服务器启动失败: %w", err)
				}
			}
			logger.Info("正在关闭服务器...")

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("服务器关闭异常", zap.Error(err))
			}
			<-schedDone
			logger.Info("服务器已安全关闭")
			return nil
		}),
	}
}

func newConsumeCommand(opts *rootOptions) *cobra.Command {
	var alias string
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "从 Kafka 处理流消费原始上传",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app.App, _ []string) error {
			if a.Cfg.Stream.Backend != stream.BackendKafka {
				return fmt.Errorf("处理流 %s 由函数平台消费，不需要 consume", a.Cfg.Stream.Backend)
			}
			handler, err := a.Handler(ctx, alias)
			if err != nil {
				return err
			}
			consumer, err := stream.NewKafkaConsumer(
				a.Cfg.Stream.Kafka.Brokers,
				a.Cfg.Stream.Kafka.GroupID,
				a.Cfg.Stream.Name,
				a.Cfg.Ingest.BatchSize,
				a.Cfg.Stream.Kafka.GetMaxWait(),
			)
			if err != nil {
				return err
			}
			defer consumer.Close()

			logger.Info("开始消费处理流", zap.String("topic", a.Cfg.Stream.Name))
			err = consumer.Run(ctx, handler.HandleRecords)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}),
	}
	cmd.Flags().StringVar(&alias, "alias", "", "以哪个别名的身份处理，默认 ingest.invoked_alias")
	return cmd
}

func newResizeStreamCommand(opts *rootOptions) *cobra.Command {
	var shards int
	cmd := &cobra.Command{
		Use:   "resize-stream",
		Short: "按积压量调整处理流分片，或调整到指定分片数",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app.App, _ []string) error {
			if shards > 0 {
				controller, err := a.Capacity(ctx)
				if err != nil {
					return err
				}
				if err := controller.ResizeToSize(ctx, shards); err != nil {
					return err
				}
				logger.Info("处理流分片已调整", zap.Int("shards", shards))
				return nil
			}
			target, err := a.ResizeStream(ctx)
			if err != nil {
				return err
			}
			logger.Info("处理流分片已调整", zap.Int("shards", target))
			return nil
		}),
	}
	cmd.Flags().IntVar(&shards, "shards", 0, "目标分片数，必须是 2 的幂")
	return cmd
}

func newRequeueRawUploadsCommand(opts *rootOptions) *cobra.Command {
	var (
		attempt bool
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "requeue-raw-uploads",
		Short: "把新上传区的日志重新投递到处理流",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app.App, _ []string) error {
			r, err := a.Requeuer(ctx)
			if err != nil {
				return err
			}
			n, err := r.RequeueRawUploads(ctx, attempt, limit)
			logger.Info("新上传区重新投递完成", zap.Int("published", n))
			return err
		}),
	}
	cmd.Flags().BoolVar(&attempt, "attempt-reprocessing", false, "已有事件的上传也重新处理")
	cmd.Flags().IntVar(&limit, "limit", 0, "最多投递数量，0 表示不限制")
	return cmd
}

func newRequeueFailedCommand(opts *rootOptions) *cobra.Command {
	var (
		since   string
		attempt bool
	)
	cmd := &cobra.Command{
		Use:   "requeue-failed",
		Short: "把失败区的日志重新投递到处理流",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app.App, _ []string) error {
			cutoff, err := parseSince(since, time.Now())
			if err != nil {
				return err
			}
			r, err := a.Requeuer(ctx)
			if err != nil {
				return err
			}
			n, err := r.RequeueFailed(ctx, cutoff, attempt)
			logger.Info("失败区重新投递完成", zap.Int("published", n), zap.Time("since", cutoff))
			return err
		}),
	}
	cmd.Flags().StringVar(&since, "since", "", "只投递该时间之后的上传，支持 2006-01-02、RFC3339 或 24h 这样的时长")
	cmd.Flags().BoolVar(&attempt, "attempt-reprocessing", true, "已有事件的上传也重新处理")
	return cmd
}

// parseSince 空字符串表示不限制
func parseSince(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		return now.Add(-d).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析 --since: %q", value)
}

func newToggleConsumerCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle-consumer <true|false>",
		Short: "启用或停用处理流的消费者",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(ctx context.Context, a *app.App, args []string) error {
			enabled, err := strconv.ParseBool(args[0])
			if err != nil {
				return fmt.Errorf("参数必须是 true 或 false: %w", err)
			}
			deployer, err := a.Deployer(ctx)
			if err != nil {
				return err
			}
			if err := deployer.SetConsumerEnabled(ctx, enabled); err != nil {
				return err
			}
			logger.Info("处理流消费者已切换", zap.Bool("enabled", enabled))
			return nil
		}),
	}
}

func newPromoteCommand(opts *rootOptions) *cobra.Command {
	var bypass bool
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "发布处理函数新版本，金丝雀验证通过后切换生产别名",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app.App, _ []string) error {
			controller, err := a.Canary(ctx)
			if err != nil {
				return err
			}
			run, err := controller.Deploy(ctx, bypass)
			if run != nil {
				logger.Info("金丝雀发布结束",
					zap.String("new_version", run.NewVersion),
					zap.String("prod_version", run.ProdVersion),
					zap.Bool("bypassed", run.Bypassed),
					zap.Int("uploads", len(run.Uploads)),
					zap.Int("failures", len(run.Failures)),
					zap.Int("requeued", run.Requeued))
			}
			return err
		}),
	}
	cmd.Flags().BoolVar(&bypass, "bypass-canary", false, "跳过金丝雀验证直接发布")
	return cmd
}

func newReapOrphansCommand(opts *rootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "reap-orphans",
		Short: "清理没有日志的描述文件",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, a *app.App, _ []string) error {
			r, err := a.Reaper()
			if err != nil {
				return err
			}
			if date == "" {
				_, err = r.Run(ctx)
				return err
			}
			day, err := time.Parse(time.DateOnly, date)
			if err != nil {
				return fmt.Errorf("无法解析 --date: %w", err)
			}
			_, err = r.ReapDate(ctx, day)
			return err
		}),
	}
	cmd.Flags().StringVar(&date, "date", "", "清理哪一天，格式 2006-01-02，默认 reaper.delay_days 天前")
	return cmd
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "创建或更新数据表",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(_ context.Context, a *app.App, _ []string) error {
			conn, err := a.Database()
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(conn); err != nil {
				return fmt.Errorf("数据库迁移失败: %w", err)
			}
			logger.Info("数据库迁移完成")
			return nil
		}),
	}
}

func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "生成 jwt.admin_password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			cmd.Println(hash)
			return nil
		},
	}
}
