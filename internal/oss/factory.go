package oss

import (
	"context"
	"fmt"
	"sync"

	"github.com/myysophia/replay-ingest/internal/config"
	"github.com/myysophia/replay-ingest/internal/logger"
	"go.uber.org/zap"
)

// StoreFactory 存储服务工厂
type StoreFactory struct {
	cfg   *config.StorageConfig
	cache map[string]ObjectStore
	lock  sync.RWMutex
}

// NewStoreFactory 创建存储服务工厂
func NewStoreFactory(cfg *config.StorageConfig) *StoreFactory {
	return &StoreFactory{
		cfg:   cfg,
		cache: make(map[string]ObjectStore),
	}
}

// GetStore 获取指定类型的存储服务
func (f *StoreFactory) GetStore(ctx context.Context, storageType string) (ObjectStore, error) {
	f.lock.RLock()
	store, ok := f.cache[storageType]
	f.lock.RUnlock()
	if ok {
		return store, nil
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	// 再次检查，防止在获取锁的过程中被其他协程创建
	if store, ok = f.cache[storageType]; ok {
		return store, nil
	}

	var err error
	switch storageType {
	case StorageTypeAWSS3:
		store, err = NewS3Store(ctx, &f.cfg.AWSS3)
	case StorageTypeAliyunOSS:
		store, err = NewAliyunStore(&f.cfg.AliyunOSS)
	default:
		return nil, fmt.Errorf("不支持的存储类型: %s", storageType)
	}
	if err != nil {
		logger.Error("创建存储服务失败", zap.String("storageType", storageType), zap.Error(err))
		return nil, err
	}

	f.cache[storageType] = store
	return store, nil
}

// GetDefaultStore 获取配置中指定的存储服务
func (f *StoreFactory) GetDefaultStore(ctx context.Context) (ObjectStore, error) {
	return f.GetStore(ctx, f.cfg.Type)
}

// ClearCache 清除缓存
func (f *StoreFactory) ClearCache() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.cache = make(map[string]ObjectStore)
}
