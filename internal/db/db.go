package db

import (
	"fmt"

	"github.com/myysophia/replay-ingest/internal/config"
	"github.com/myysophia/replay-ingest/internal/db/models"
	"github.com/myysophia/replay-ingest/internal/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

var db *gorm.DB

// GormConfig 项目统一的 GORM 配置
func GormConfig() *gorm.Config {
	return &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		// 禁用默认事务
		SkipDefaultTransaction: true,
	}
}

// Init 初始化数据库连接
func Init(cfg *config.DatabaseConfig) error {
	conn, err := gorm.Open(postgres.Open(cfg.GetDSN()), GormConfig())
	if err != nil {
		return fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("获取数据库实例失败: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.GetConnMaxLifetime())

	db = conn

	if cfg.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	logger.Info("数据库初始化成功")
	return nil
}

// AutoMigrate 自动迁移数据库表
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(models.All()...)
}

// GetDB 获取数据库连接
func GetDB() *gorm.DB {
	return db
}

// SetDB 替换数据库连接，测试使用
func SetDB(conn *gorm.DB) {
	db = conn
}

// Close 关闭数据库连接
func Close() error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
