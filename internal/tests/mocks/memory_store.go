package mocks

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/myysophia/replay-ingest/internal/oss"
)

// MemoryStore 内存对象存储，测试使用
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	// FailHook 返回非空错误时对应操作失败
	FailHook func(op, bucket, key string) error
	Deleted  []string
}

// NewMemoryStore 创建内存对象存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func objectPath(bucket, key string) string {
	return bucket + "/" + key
}

func (m *MemoryStore) fail(op, bucket, key string) error {
	if m.FailHook == nil {
		return nil
	}
	if err := m.FailHook(op, bucket, key); err != nil {
		return fmt.Errorf("%s %s: %w", op, objectPath(bucket, key), err)
	}
	return nil
}

// GetType 获取存储类型
func (m *MemoryStore) GetType() string {
	return "MEMORY"
}

// Put 写入对象
func (m *MemoryStore) Put(_ context.Context, bucket, key string, body []byte) error {
	if err := m.fail("put", bucket, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectPath(bucket, key)] = append([]byte(nil), body...)
	return nil
}

// Get 读取对象
func (m *MemoryStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	if err := m.fail("get", bucket, key); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[objectPath(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", objectPath(bucket, key), oss.ErrNotFound)
	}
	return append([]byte(nil), b...), nil
}

// Copy 复制对象
func (m *MemoryStore) Copy(_ context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	if err := m.fail("copy", srcBucket, srcKey); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[objectPath(srcBucket, srcKey)]
	if !ok {
		return fmt.Errorf("copy %s: %w", objectPath(srcBucket, srcKey), oss.ErrNotFound)
	}
	m.objects[objectPath(dstBucket, dstKey)] = b
	return nil
}

// DeleteOne 删除对象
func (m *MemoryStore) DeleteOne(_ context.Context, bucket, key string) error {
	if err := m.fail("delete", bucket, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, objectPath(bucket, key))
	m.Deleted = append(m.Deleted, objectPath(bucket, key))
	return nil
}

// DeleteMany 批量删除对象
func (m *MemoryStore) DeleteMany(ctx context.Context, bucket string, keys []string) error {
	for _, k := range keys {
		if err := m.DeleteOne(ctx, bucket, k); err != nil {
			return err
		}
	}
	return nil
}

// ListAll 按前缀列举对象，按键排序
func (m *MemoryStore) ListAll(_ context.Context, bucket, prefix string) iter.Seq2[oss.ObjectSummary, error] {
	return func(yield func(oss.ObjectSummary, error) bool) {
		if err := m.fail("list", bucket, prefix); err != nil {
			yield(oss.ObjectSummary{}, err)
			return
		}

		m.mu.Lock()
		var found []oss.ObjectSummary
		full := objectPath(bucket, prefix)
		for k, v := range m.objects {
			if strings.HasPrefix(k, full) {
				found = append(found, oss.ObjectSummary{
					Key:          strings.TrimPrefix(k, bucket+"/"),
					Size:         int64(len(v)),
					LastModified: time.Now(),
				})
			}
		}
		m.mu.Unlock()

		sort.Slice(found, func(i, j int) bool { return found[i].Key < found[j].Key })
		for _, obj := range found {
			if !yield(obj, nil) {
				return
			}
		}
	}
}

// PresignGet 生成下载地址
func (m *MemoryStore) PresignGet(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://%s.example.com/%s?expires=%d", bucket, key, int(ttl.Seconds())), nil
}

// PresignPut 生成上传地址
func (m *MemoryStore) PresignPut(_ context.Context, bucket, key, _ string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://%s.example.com/%s?method=PUT&expires=%d", bucket, key, int(ttl.Seconds())), nil
}

// Has 判断对象是否存在
func (m *MemoryStore) Has(bucket, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[objectPath(bucket, key)]
	return ok
}

// Keys 返回某个桶下的全部键
func (m *MemoryStore) Keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, bucket+"/") {
			keys = append(keys, strings.TrimPrefix(k, bucket+"/"))
		}
	}
	sort.Strings(keys)
	return keys
}
