package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"joule/internal/model"
	"joule/internal/pkg/cache"
)

// TruncationMarker 超长消息截断标记
const TruncationMarker = "... [message truncated]"

// ConversationRepo 基于缓存的对话窗口仓库
// 缓存故障一律按"没有历史/写入丢弃"处理，不向调用方传播
//
// 并发说明: 同一用户的 append 是读-改-写，进程内用按用户分片的互斥锁串行化；
// 多实例部署下仍可能丢失并发写入，属于已接受的弱一致行为
type ConversationRepo struct {
	store      cache.Store
	maxHistory int
	contentCap int
	ttl        time.Duration

	locks sync.Map // userID -> *sync.Mutex
}

// NewConversationRepo 创建对话仓库
func NewConversationRepo(store cache.Store, maxHistory, contentCap int, ttl time.Duration) *ConversationRepo {
	return &ConversationRepo{
		store:      store,
		maxHistory: maxHistory,
		contentCap: contentCap,
		ttl:        ttl,
	}
}

func (r *ConversationRepo) userLock(userID string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Get 读取用户当前对话窗口，不存在或缓存故障时返回 nil
func (r *ConversationRepo) Get(ctx context.Context, userID string) *model.Conversation {
	var conv model.Conversation
	err := cache.GetJSON(ctx, r.store, cache.ConversationKey(userID), &conv)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			log.Warn().Err(err).Str("user_id", userID).Msg("conversation read failed, treating as empty")
		}
		return nil
	}
	return &conv
}

// Append 追加一条消息并刷新 TTL
// 内容超过硬上限时截断并附加可见标记；窗口超过上限时淘汰最旧消息
func (r *ConversationRepo) Append(ctx context.Context, userID, role, content string) {
	mu := r.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	now := time.Now().UTC()

	conv := r.Get(ctx, userID)
	if conv == nil {
		conv = &model.Conversation{
			UserID:    userID,
			CreatedAt: now,
		}
	}

	if len(content) > r.contentCap {
		log.Warn().
			Str("user_id", userID).
			Int("original_length", len(content)).
			Int("cap", r.contentCap).
			Msg("message content truncated")
		content = content[:r.contentCap] + TruncationMarker
	}

	conv.Messages = append(conv.Messages, model.Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})

	// 滑动窗口: 保留最近 maxHistory 条
	if len(conv.Messages) > r.maxHistory {
		conv.Messages = conv.Messages[len(conv.Messages)-r.maxHistory:]
	}

	conv.UpdatedAt = now

	if err := cache.SetJSON(ctx, r.store, cache.ConversationKey(userID), conv, r.ttl); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("conversation write failed, append dropped")
	}
}

// Clear 删除用户对话窗口
func (r *ConversationRepo) Clear(ctx context.Context, userID string) {
	if err := r.store.Delete(ctx, cache.ConversationKey(userID)); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("conversation clear failed")
	}
}
