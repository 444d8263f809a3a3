package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"joule/internal/config"
)

// ErrMiss key 不存在（或被调用方视为不存在的缓存故障）
var ErrMiss = errors.New("cache: miss")

// Store 通用 KV 缓存接口
// 约定: 任何一个操作的失败都只代表"缓存不可用"，调用方必须把失败当作
// 缓存缺失/写入丢弃处理，绝不向上传播为请求失败
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Increment 原子自增，返回自增后的值
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// RedisStore Redis 缓存封装
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore 创建 Redis 缓存客户端
func NewRedisStore(cfg *config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Get 获取缓存
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

// Set 设置缓存
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Delete 删除缓存
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

// Exists 检查 key 是否存在
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, err
}

// Increment 原子自增计数器
func (s *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

// Expire 设置过期时间
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

// Close 关闭连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// GetJSON 获取缓存并反序列化
func GetJSON(ctx context.Context, s Store, key string, dest any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// SetJSON 序列化后写入缓存
func SetJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, string(data), ttl)
}

// 常用 key 模式
const (
	ConversationKeyPrefix = "conversation:"
	QueryCacheKeyPrefix   = "query_cache:"
	RateLimitKeyPrefix    = "rate_limit:"
	UsageKeyPrefix        = "usage:"
)

// ConversationKey 生成对话缓存 key
func ConversationKey(userID string) string {
	return ConversationKeyPrefix + userID
}

// QueryCacheKey 生成查询结果缓存 key
func QueryCacheKey(hash string) string {
	return QueryCacheKeyPrefix + hash
}

// RateLimitKey 生成 IP 限流 key
func RateLimitKey(ip string) string {
	return RateLimitKeyPrefix + ip
}

// UsageKey 生成用户+端点用量 key
func UsageKey(userID, endpoint string) string {
	return UsageKeyPrefix + userID + ":" + endpoint
}
