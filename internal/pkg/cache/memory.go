package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Memory 进程内 Store 实现
// 用于测试和无 Redis 的本地运行；带过期语义，行为与 RedisStore 对齐
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value    string
	expireAt time.Time // 零值表示不过期
}

var _ Store = (*Memory)(nil)

// NewMemory 创建内存缓存
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// SetClock 替换时钟（测试用）
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) live(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expireAt.IsZero() && !m.now().Before(e.expireAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

// Get 获取缓存
func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key)
	if !ok {
		return "", ErrMiss
	}
	return e.value, nil
}

// Set 设置缓存
func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expireAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

// Delete 删除缓存
func (m *Memory) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

// Exists 检查 key 是否存在
func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.live(key)
	return ok, nil
}

// Increment 自增计数器
func (m *Memory) Increment(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key)
	var n int64
	if ok {
		parsed, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	m.entries[key] = e
	return n, nil
}

// Expire 设置过期时间
func (m *Memory) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key)
	if !ok {
		return nil
	}
	e.expireAt = m.now().Add(ttl)
	m.entries[key] = e
	return nil
}
