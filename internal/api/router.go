package api

import (
	"github.com/gin-gonic/gin"
	"github.com/myysophia/replay-ingest/internal/api/handlers"
	"github.com/myysophia/replay-ingest/internal/api/middleware"
	"github.com/myysophia/replay-ingest/internal/config"
	"github.com/myysophia/replay-ingest/internal/db/repository"
	"github.com/myysophia/replay-ingest/internal/oss"
	"github.com/myysophia/replay-ingest/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// SetupRouter 设置路由
// conn 仅用于健康检查，gatherer 为 nil 时使用默认 Gatherer
func SetupRouter(
	cfg *config.Config,
	store oss.ObjectStore,
	events repository.UploadEventRepository,
	conn *gorm.DB,
	gatherer prometheus.Gatherer,
) *gin.Engine {
	if cfg.App.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	utils.InitValidator()

	router := gin.New()

	// 全局中间件
	router.Use(
		middleware.RecoveryMiddleware(), // 恢复中间件
		middleware.LoggerMiddleware(),   // 日志中间件
	)

	authHandler := handlers.NewAuthHandler(&cfg.JWT)
	uploadHandler := handlers.NewUploadHandler(store, cfg.Storage.RawBucket, cfg.Storage.GetPutURLExpiration())
	uploadEventHandler := handlers.NewUploadEventHandler(events, store, cfg.Storage.RawBucket)
	healthHandler := handlers.NewHealthHandler(conn)

	router.NoRoute(func(c *gin.Context) {
		utils.ResponseError(c, utils.CodeNotFound, nil)
	})

	router.GET("/healthz", healthHandler.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// 公开路由
	public := router.Group("/api/v1")
	{
		public.POST("/auth/token", authHandler.Token)
		// 客户端使用自己的 Authorization 头，不走运维认证
		public.POST("/uploads/request", uploadHandler.RequestUpload)
	}

	// 运维路由
	authorized := router.Group("/api/v1")
	authorized.Use(middleware.AuthMiddleware(&cfg.JWT))
	{
		authorized.GET("/uploads/:shortid", uploadEventHandler.Get)
	}

	return router
}
