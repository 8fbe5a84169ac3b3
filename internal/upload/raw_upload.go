package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/myysophia/replay-ingest/internal/logger"
	"github.com/myysophia/replay-ingest/internal/oss"
	"go.uber.org/zap"
)

// RawUpload 对象存储中的一次原始上传
type RawUpload struct {
	store  oss.ObjectStore
	Bucket string
	Location

	descriptor *Descriptor
	now        func() time.Time
}

// New 根据日志对象键创建原始上传，区域由键的形状推断
func New(store oss.ObjectStore, bucket, key string) (*RawUpload, error) {
	loc, err := ParseKey(key)
	if err != nil {
		return nil, err
	}
	if loc.Kind != KindLog {
		return nil, fmt.Errorf("%w: 不是日志对象键: %s", ErrMalformedKey, key)
	}

	return &RawUpload{
		store:    store,
		Bucket:   bucket,
		Location: loc,
		now:      time.Now,
	}, nil
}

// LogKey 日志对象键
func (r *RawUpload) LogKey() string {
	return r.Sibling(KindLog)
}

// DescriptorKey 描述文件对象键
func (r *RawUpload) DescriptorKey() string {
	return r.Sibling(KindDescriptor)
}

// ErrorKey 失败记录对象键，仅失败区存在
func (r *RawUpload) ErrorKey() string {
	return GenerateKey(StateFailed, r.Timestamp, r.ShortID, KindErrorHistory)
}

func (r *RawUpload) String() string {
	return r.Bucket + "/" + r.LogKey()
}

// Descriptor 读取描述文件，成功后缓存
func (r *RawUpload) Descriptor(ctx context.Context) (*Descriptor, error) {
	if r.descriptor != nil {
		return r.descriptor, nil
	}

	body, err := r.store.Get(ctx, r.Bucket, r.DescriptorKey())
	if err != nil {
		if !errors.Is(err, oss.ErrNotFound) {
			return nil, err
		}
		if r.State == StateNew {
			failedLog := GenerateKey(StateFailed, r.Timestamp, r.ShortID, KindLog)
			moved, existsErr := oss.Exists(ctx, r.store, r.Bucket, failedLog)
			if existsErr != nil {
				return nil, existsErr
			}
			if moved {
				return nil, fmt.Errorf("%w: %s", ErrMisclassifiedUpload, failedLog)
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrDescriptorUnavailable, r.DescriptorKey())
	}

	d := &Descriptor{}
	if err := json.Unmarshal(body, d); err != nil {
		return nil, fmt.Errorf("%w: 解析 %s 失败: %v", ErrDescriptorUnavailable, r.DescriptorKey(), err)
	}

	r.descriptor = d
	return d, nil
}

// RelocateToDurableZone 把日志和描述文件复制到持久区，目标与源相同时不做任何事
func (r *RawUpload) RelocateToDurableZone(ctx context.Context, bucket, logKey, descriptorKey string) error {
	if err := r.store.Copy(ctx, r.Bucket, r.LogKey(), bucket, logKey); err != nil {
		return fmt.Errorf("复制日志到持久区失败: %w", err)
	}
	if err := r.store.Copy(ctx, r.Bucket, r.DescriptorKey(), bucket, descriptorKey); err != nil {
		return fmt.Errorf("复制描述文件到持久区失败: %w", err)
	}
	return nil
}

// MarkFailed 记录一次失败
// 新上传会被移入失败区，之后的调用只追加失败记录
func (r *RawUpload) MarkFailed(ctx context.Context, reason string) error {
	log := logger.ForUpload(r.ShortID)

	switch r.State {
	case StateFailed:
		history, err := r.loadHistory(ctx, r.ErrorKey())
		if err != nil {
			return err
		}
		history.Attempts = append(history.Attempts, r.attempt(reason))
		return r.putHistory(ctx, r.ErrorKey(), history)

	case StateNew:
		failedLog := GenerateKey(StateFailed, r.Timestamp, r.ShortID, KindLog)
		failedDescriptor := GenerateKey(StateFailed, r.Timestamp, r.ShortID, KindDescriptor)
		errorKey := r.ErrorKey()

		// 合并之前未完成的移动留下的记录
		history, err := r.loadHistory(ctx, errorKey)
		if err != nil {
			return err
		}
		history.Attempts = append(history.Attempts, r.attempt(reason))

		if err := r.store.Copy(ctx, r.Bucket, r.LogKey(), r.Bucket, failedLog); err != nil {
			return fmt.Errorf("复制日志到失败区失败: %w", err)
		}
		err = r.store.Copy(ctx, r.Bucket, r.DescriptorKey(), r.Bucket, failedDescriptor)
		if err != nil && !errors.Is(err, oss.ErrNotFound) {
			return fmt.Errorf("复制描述文件到失败区失败: %w", err)
		}
		if err := r.putHistory(ctx, errorKey, history); err != nil {
			return err
		}
		if err := r.store.DeleteMany(ctx, r.Bucket, []string{r.LogKey(), r.DescriptorKey()}); err != nil {
			return fmt.Errorf("删除新上传区对象失败: %w", err)
		}

		log.Warn("原始上传已移入失败区", zap.String("key", failedLog), zap.String("reason", reason))
		r.State = StateFailed
		return nil

	default:
		return fmt.Errorf("%w: 持久区上传不能标记为失败", ErrUnsupportedState)
	}
}

// ErrorHistory 读取失败记录
func (r *RawUpload) ErrorHistory(ctx context.Context) (*ErrorHistory, error) {
	if r.State != StateFailed {
		return nil, fmt.Errorf("%w: 只有失败区上传有失败记录", ErrUnsupportedState)
	}
	return r.loadHistory(ctx, r.ErrorKey())
}

// Delete 删除原始上传，持久区对象归上传事件所有，不能删除
func (r *RawUpload) Delete(ctx context.Context) error {
	var keys []string
	switch r.State {
	case StateNew:
		keys = []string{r.LogKey(), r.DescriptorKey()}
	case StateFailed:
		keys = []string{r.LogKey(), r.DescriptorKey(), r.ErrorKey()}
	default:
		return fmt.Errorf("%w: 不能删除持久区上传 %s", ErrUnsupportedState, r.LogKey())
	}

	if err := r.store.DeleteMany(ctx, r.Bucket, keys); err != nil {
		return fmt.Errorf("删除原始上传失败: %w", err)
	}
	return nil
}

// Deletable 当前区域是否允许 Delete
func (r *RawUpload) Deletable() bool {
	return r.State == StateNew || r.State == StateFailed
}

// LogURL 生成日志的临时下载地址
func (r *RawUpload) LogURL(ctx context.Context, ttl time.Duration) (string, error) {
	return r.store.PresignGet(ctx, r.Bucket, r.LogKey(), ttl)
}

func (r *RawUpload) attempt(reason string) Attempt {
	return Attempt{
		Reason:    reason,
		LogKey:    r.LogKey(),
		FailureTS: r.now().UTC().Format(time.RFC3339),
	}
}

func (r *RawUpload) loadHistory(ctx context.Context, key string) (*ErrorHistory, error) {
	body, err := r.store.Get(ctx, r.Bucket, key)
	if errors.Is(err, oss.ErrNotFound) {
		return &ErrorHistory{}, nil
	}
	if err != nil {
		return nil, err
	}

	history := &ErrorHistory{}
	if err := json.Unmarshal(body, history); err != nil {
		// 记录损坏时重新开始
		logger.ForUpload(r.ShortID).Warn("失败记录无法解析", zap.String("key", key), zap.Error(err))
		return &ErrorHistory{}, nil
	}
	return history, nil
}

func (r *RawUpload) putHistory(ctx context.Context, key string, history *ErrorHistory) error {
	body, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("序列化失败记录失败: %w", err)
	}
	if err := r.store.Put(ctx, r.Bucket, key, body); err != nil {
		return fmt.Errorf("写入失败记录失败: %w", err)
	}
	return nil
}

// List 列举某个前缀下的原始上传，格式错误的键会被跳过
func List(ctx context.Context, store oss.ObjectStore, bucket, prefix string) iter.Seq2[*RawUpload, error] {
	return func(yield func(*RawUpload, error) bool) {
		for obj, err := range store.ListAll(ctx, bucket, prefix) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !strings.HasSuffix(obj.Key, "."+string(KindLog)) {
				continue
			}
			raw, err := New(store, bucket, obj.Key)
			if err != nil {
				logger.Warn("跳过格式错误的对象键", zap.String("key", obj.Key), zap.Error(err))
				continue
			}
			if !yield(raw, nil) {
				return
			}
		}
	}
}

// FindFailed 查找某个 shortid 在失败区的上传，不存在时返回 nil
func FindFailed(ctx context.Context, store oss.ObjectStore, bucket, shortID string) (*RawUpload, error) {
	for raw, err := range List(ctx, store, bucket, FailedPrefixFor(shortID)) {
		if err != nil {
			return nil, err
		}
		return raw, nil
	}
	return nil, nil
}
