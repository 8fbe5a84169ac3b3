package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld 锁已被其他实例持有
var ErrLockHeld = errors.New("锁已被占用")

// Locker 跨进程互斥
type Locker interface {
	// Acquire 获取锁，返回释放函数
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 基于 SET NX PX 的锁
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLocker 创建 Redis 锁
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client, prefix: "replay:lock:"}
}

// Acquire 获取锁，已被持有时返回 ErrLockHeld
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("获取锁 %s 失败: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			return fmt.Errorf("释放锁 %s 失败: %w", key, err)
		}
		return nil
	}, nil
}

// ConnectRedis 根据 URL 或 host:port 创建客户端
func ConnectRedis(url, addr string) (*redis.Client, error) {
	if url != "" {
		opt, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("解析 redis url 失败: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	if addr == "" {
		return nil, fmt.Errorf("未配置 redis 地址")
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}
