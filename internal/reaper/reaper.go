package reaper

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/myysophia/replay-ingest/internal/db/repository"
	"github.com/myysophia/replay-ingest/internal/logger"
	"github.com/myysophia/replay-ingest/internal/metrics"
	"github.com/myysophia/replay-ingest/internal/oss"
	"github.com/myysophia/replay-ingest/internal/upload"
	"go.uber.org/zap"
)

// 单次批量查询事件的 shortid 数量
const lookupBatch = 500

// Report 一次清理的结果
type Report struct {
	Date time.Time
	// Reaped 每小时删除的孤立描述文件数
	Reaped  map[int]int
	Skipped int
}

// Total 删除总数
func (r *Report) Total() int {
	n := 0
	for _, c := range r.Reaped {
		n += c
	}
	return n
}

// Reaper 清理新上传区中没有日志的描述文件
// 客户端申请了上传地址但没有上传日志时会留下这类描述文件
type Reaper struct {
	store     oss.ObjectStore
	bucket    string
	events    repository.UploadEventRepository
	metrics   *metrics.Metrics
	delayDays int
	now       func() time.Time
}

// New delayDays 至少为 1，避免删除刚创建的描述文件
func New(store oss.ObjectStore, bucket string, events repository.UploadEventRepository, m *metrics.Metrics, delayDays int) *Reaper {
	if delayDays < 1 {
		delayDays = 1
	}
	return &Reaper{
		store:     store,
		bucket:    bucket,
		events:    events,
		metrics:   m,
		delayDays: delayDays,
		now:       time.Now,
	}
}

// Run 清理 delayDays 天前的新上传区
func (r *Reaper) Run(ctx context.Context) (*Report, error) {
	day := r.now().UTC().AddDate(0, 0, -r.delayDays)
	return r.ReapDate(ctx, day)
}

type inventoryEntry struct {
	descriptor string
	hasLog     bool
	hour       int
}

// ReapDate 清理某一天的孤立描述文件，day 距今不足 delayDays 时拒绝执行
func (r *Reaper) ReapDate(ctx context.Context, day time.Time) (*Report, error) {
	day = day.UTC().Truncate(24 * time.Hour)
	earliest := r.now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -r.delayDays)
	if day.After(earliest) {
		return nil, fmt.Errorf("只能清理 %d 天前的上传: %s", r.delayDays, day.Format(time.DateOnly))
	}

	logger.Info("开始清理孤立描述文件", zap.String("date", day.Format(time.DateOnly)))
	inventory, err := r.inventory(ctx, day)
	if err != nil {
		return nil, err
	}

	report := &Report{Date: day, Reaped: make(map[int]int)}
	var candidates []string
	for shortID, entry := range inventory {
		if entry.descriptor == "" {
			continue
		}
		if entry.hasLog {
			// 有日志说明是处理遇到问题的上传，不是孤立文件
			report.Skipped++
			continue
		}
		candidates = append(candidates, shortID)
	}
	sort.Strings(candidates)

	for start := 0; start < len(candidates); start += lookupBatch {
		end := min(start+lookupBatch, len(candidates))
		batch := candidates[start:end]

		existing, err := r.events.ListByShortIDs(ctx, batch)
		if err != nil {
			return report, err
		}
		owned := make(map[string]bool, len(existing))
		for _, e := range existing {
			owned[e.ShortID] = true
		}

		var keys []string
		for _, id := range batch {
			if owned[id] {
				logger.ForUpload(id).Info("描述文件已有上传事件，跳过", zap.String("key", inventory[id].descriptor))
				report.Skipped++
				continue
			}
			keys = append(keys, inventory[id].descriptor)
			report.Reaped[inventory[id].hour]++
		}
		if len(keys) == 0 {
			continue
		}
		if err := r.store.DeleteMany(ctx, r.bucket, keys); err != nil {
			return report, fmt.Errorf("删除孤立描述文件失败: %w", err)
		}
	}

	hours := make([]int, 0, len(report.Reaped))
	for h := range report.Reaped {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	for _, h := range hours {
		logger.Info("孤立描述文件已清理", zap.Int("hour", h), zap.Int("count", report.Reaped[h]))
	}
	r.metrics.AddReapedOrphans(report.Total())
	logger.Info("孤立描述文件清理完成",
		zap.String("date", day.Format(time.DateOnly)),
		zap.Int("reaped", report.Total()),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

// inventory 按 shortid 汇总某天新上传区的对象
func (r *Reaper) inventory(ctx context.Context, day time.Time) (map[string]*inventoryEntry, error) {
	inventory := make(map[string]*inventoryEntry)
	for obj, err := range r.store.ListAll(ctx, r.bucket, upload.NewDayPrefix(day)) {
		if err != nil {
			return nil, err
		}
		loc, err := upload.ParseKey(obj.Key)
		if err != nil {
			logger.Warn("跳过格式错误的对象键", zap.String("key", obj.Key), zap.Error(err))
			continue
		}

		entry, ok := inventory[loc.ShortID]
		if !ok {
			entry = &inventoryEntry{hour: loc.Timestamp.Hour()}
			inventory[loc.ShortID] = entry
		}
		switch loc.Kind {
		case upload.KindDescriptor:
			entry.descriptor = obj.Key
		case upload.KindLog:
			entry.hasLog = true
		}
	}
	return inventory, nil
}
