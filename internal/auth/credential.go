package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/myysophia/replay-ingest/internal/db/models"
	"gorm.io/gorm"
)

var (
	// ErrInvalidCredential 令牌或 API Key 无效
	ErrInvalidCredential = errors.New("凭证无效")
)

const (
	defaultCacheSize = 4096
	defaultCacheTTL  = 5 * time.Minute
)

// TokenResolver 解析 Authorization: Token <uuid>
type TokenResolver struct {
	db    *gorm.DB
	cache *expirable.LRU[string, *models.AuthToken]
}

// NewTokenResolver 创建令牌解析器，查询结果缓存 ttl
func NewTokenResolver(db *gorm.DB, size int, ttl time.Duration) *TokenResolver {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &TokenResolver{
		db:    db,
		cache: expirable.NewLRU[string, *models.AuthToken](size, nil, ttl),
	}
}

// ResolveToken 根据 Authorization 头查找令牌
func (r *TokenResolver) ResolveToken(ctx context.Context, authorization string) (*models.AuthToken, error) {
	key, err := parseTokenHeader(authorization)
	if err != nil {
		return nil, err
	}

	if token, ok := r.cache.Get(key); ok {
		return token, nil
	}

	var token models.AuthToken
	err = r.db.WithContext(ctx).Where("key = ? AND enabled = ?", key, true).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: 令牌不存在", ErrInvalidCredential)
	}
	if err != nil {
		return nil, fmt.Errorf("查询令牌失败: %w", err)
	}

	r.cache.Add(key, &token)
	return &token, nil
}

// APIKeyResolver 解析 X-Api-Key
type APIKeyResolver struct {
	db    *gorm.DB
	cache *expirable.LRU[string, *models.APIKey]
}

// NewAPIKeyResolver 创建 API Key 解析器
func NewAPIKeyResolver(db *gorm.DB, size int, ttl time.Duration) *APIKeyResolver {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &APIKeyResolver{
		db:    db,
		cache: expirable.NewLRU[string, *models.APIKey](size, nil, ttl),
	}
}

// ResolveAPIKey 查找启用的 API Key
func (r *APIKeyResolver) ResolveAPIKey(ctx context.Context, key string) (*models.APIKey, error) {
	key = strings.TrimSpace(key)
	if _, err := uuid.Parse(key); err != nil {
		return nil, fmt.Errorf("%w: API Key 格式错误", ErrInvalidCredential)
	}

	if apiKey, ok := r.cache.Get(key); ok {
		return apiKey, nil
	}

	var apiKey models.APIKey
	err := r.db.WithContext(ctx).Where("key = ? AND enabled = ?", key, true).First(&apiKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: API Key 不存在", ErrInvalidCredential)
	}
	if err != nil {
		return nil, fmt.Errorf("查询 API Key 失败: %w", err)
	}

	r.cache.Add(key, &apiKey)
	return &apiKey, nil
}

func parseTokenHeader(header string) (string, error) {
	scheme, key, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Token") {
		return "", fmt.Errorf("%w: Authorization 格式错误", ErrInvalidCredential)
	}
	key = strings.TrimSpace(key)
	if _, err := uuid.Parse(key); err != nil {
		return "", fmt.Errorf("%w: 令牌格式错误", ErrInvalidCredential)
	}
	return strings.ToLower(key), nil
}
