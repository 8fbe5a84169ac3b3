package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/myysophia/replay-ingest/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// UploadEventRepository 上传事件存储
type UploadEventRepository interface {
	// GetOrCreate 按 shortid 原子地获取或创建，created 表示本次调用创建了记录
	GetOrCreate(ctx context.Context, shortID string, defaults models.UploadEvent) (event *models.UploadEvent, created bool, err error)

	// Save 保存全部字段
	Save(ctx context.Context, event *models.UploadEvent) error

	// GetByShortID 按 shortid 查询
	GetByShortID(ctx context.Context, shortID string) (*models.UploadEvent, error)

	// Exists 判断 shortid 是否已有事件
	Exists(ctx context.Context, shortID string) (bool, error)

	// ListCanaryCompleted 查询 since 之后创建、已结束处理的金丝雀事件
	ListCanaryCompleted(ctx context.Context, since time.Time) ([]models.UploadEvent, error)

	// ListByShortIDs 批量查询，返回已存在的事件
	ListByShortIDs(ctx context.Context, shortIDs []string) ([]models.UploadEvent, error)
}

// GormUploadEventRepository 基于 GORM 的实现
type GormUploadEventRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewUploadEventRepository 创建上传事件存储
func NewUploadEventRepository(db *gorm.DB) *GormUploadEventRepository {
	return &GormUploadEventRepository{db: db, now: time.Now}
}

// GetOrCreate 使用 INSERT ... ON CONFLICT (shortid) DO NOTHING 实现比较并创建
func (r *GormUploadEventRepository) GetOrCreate(ctx context.Context, shortID string, defaults models.UploadEvent) (*models.UploadEvent, bool, error) {
	event := defaults
	event.ID = 0
	event.ShortID = shortID
	if event.Status == "" {
		event.Status = models.UploadStatusPending
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now()
	}
	event.UpdatedAt = event.CreatedAt

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "shortid"}}, DoNothing: true}).
		Create(&event)
	if res.Error != nil {
		return nil, false, fmt.Errorf("创建上传事件失败: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return &event, true, nil
	}

	existing, err := r.GetByShortID(ctx, shortID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Save 保存上传事件
func (r *GormUploadEventRepository) Save(ctx context.Context, event *models.UploadEvent) error {
	event.UpdatedAt = r.now()
	if err := r.db.WithContext(ctx).Save(event).Error; err != nil {
		return fmt.Errorf("保存上传事件失败: %w", err)
	}
	return nil
}

// GetByShortID 按 shortid 查询
func (r *GormUploadEventRepository) GetByShortID(ctx context.Context, shortID string) (*models.UploadEvent, error) {
	var event models.UploadEvent
	err := r.db.WithContext(ctx).Where("shortid = ?", shortID).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("上传事件 %s: %w", shortID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("查询上传事件失败: %w", err)
	}
	return &event, nil
}

// Exists 判断 shortid 是否已有事件
func (r *GormUploadEventRepository) Exists(ctx context.Context, shortID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UploadEvent{}).Where("shortid = ?", shortID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("查询上传事件失败: %w", err)
	}
	return count > 0, nil
}

// ListCanaryCompleted 查询 since 之后创建、已结束处理的金丝雀事件
func (r *GormUploadEventRepository) ListCanaryCompleted(ctx context.Context, since time.Time) ([]models.UploadEvent, error) {
	var events []models.UploadEvent
	err := r.db.WithContext(ctx).
		Where("canary = ? AND created_at >= ? AND status NOT IN ?", true, since, models.InFlightStatuses).
		Order("created_at").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("查询金丝雀上传事件失败: %w", err)
	}
	return events, nil
}

// ListByShortIDs 批量查询，空列表不访问数据库
func (r *GormUploadEventRepository) ListByShortIDs(ctx context.Context, shortIDs []string) ([]models.UploadEvent, error) {
	if len(shortIDs) == 0 {
		return nil, nil
	}
	var events []models.UploadEvent
	err := r.db.WithContext(ctx).Where("shortid IN ?", shortIDs).Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("批量查询上传事件失败: %w", err)
	}
	return events, nil
}
