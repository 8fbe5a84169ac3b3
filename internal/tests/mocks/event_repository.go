package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/myysophia/replay-ingest/internal/db/models"
	"github.com/myysophia/replay-ingest/internal/db/repository"
)

// EventRepository 内存上传事件存储，测试使用
type EventRepository struct {
	mu     sync.Mutex
	events map[string]models.UploadEvent
	nextID uint

	// Now 新建事件的创建时间
	Now func() time.Time
	// FailHook 返回非空错误时对应操作失败，op 为 create/save/get/list
	FailHook func(op, shortID string) error
	// Saved 每次 Save 的状态，按调用顺序
	Saved []models.UploadStatus
}

var _ repository.UploadEventRepository = (*EventRepository)(nil)

// NewEventRepository 创建内存上传事件存储
func NewEventRepository() *EventRepository {
	return &EventRepository{
		events: make(map[string]models.UploadEvent),
		Now:    time.Now,
	}
}

func (r *EventRepository) fail(op, shortID string) error {
	if r.FailHook == nil {
		return nil
	}
	return r.FailHook(op, shortID)
}

// Seed 直接写入事件
func (r *EventRepository) Seed(events ...models.UploadEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range events {
		if e.ID == 0 {
			r.nextID++
			e.ID = r.nextID
		}
		r.events[e.ShortID] = e
	}
}

// GetOrCreate 获取或创建
func (r *EventRepository) GetOrCreate(_ context.Context, shortID string, defaults models.UploadEvent) (*models.UploadEvent, bool, error) {
	if err := r.fail("create", shortID); err != nil {
		return nil, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.events[shortID]; ok {
		return &existing, false, nil
	}
	event := defaults
	r.nextID++
	event.ID = r.nextID
	event.ShortID = shortID
	if event.Status == "" {
		event.Status = models.UploadStatusPending
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.Now()
	}
	event.UpdatedAt = event.CreatedAt
	r.events[shortID] = event
	return &event, true, nil
}

// Save 保存
func (r *EventRepository) Save(_ context.Context, event *models.UploadEvent) error {
	if err := r.fail("save", event.ShortID); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	event.UpdatedAt = r.Now()
	r.events[event.ShortID] = *event
	r.Saved = append(r.Saved, event.Status)
	return nil
}

// GetByShortID 按 shortid 查询
func (r *EventRepository) GetByShortID(_ context.Context, shortID string) (*models.UploadEvent, error) {
	if err := r.fail("get", shortID); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[shortID]
	if !ok {
		return nil, fmt.Errorf("上传事件 %s: %w", shortID, repository.ErrNotFound)
	}
	return &event, nil
}

// Exists 是否存在
func (r *EventRepository) Exists(_ context.Context, shortID string) (bool, error) {
	if err := r.fail("get", shortID); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.events[shortID]
	return ok, nil
}

// ListCanaryCompleted 查询已结束的金丝雀事件
func (r *EventRepository) ListCanaryCompleted(_ context.Context, since time.Time) ([]models.UploadEvent, error) {
	if err := r.fail("list", ""); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.UploadEvent
	for _, e := range r.events {
		if e.Canary && !e.CreatedAt.Before(since) && !e.Status.InFlight() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListByShortIDs 批量查询
func (r *EventRepository) ListByShortIDs(_ context.Context, shortIDs []string) ([]models.UploadEvent, error) {
	if err := r.fail("list", ""); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.UploadEvent
	for _, id := range shortIDs {
		if e, ok := r.events[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Get 测试断言使用，不存在时返回零值
func (r *EventRepository) Get(shortID string) models.UploadEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[shortID]
}

// Len 事件数量
func (r *EventRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
