package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"joule/internal/model"
	"joule/internal/pkg/cache"
	"joule/internal/pkg/id"
	"joule/internal/repository"
)

// apologeticMessage 管线整体兜底失败时的固定回复
const apologeticMessage = "I apologize, but I'm having trouble processing your request right now. " +
	"Please try again later or rephrase your question."

// ChatService 问答管线编排器
// 状态机: 收到请求 -> 缓存检查 -> (命中: 直接应答) |
// (未命中: 计划 -> 取数 -> 合成 -> 追问 -> 写缓存 -> 应答)
// 每个阶段都有兜底路径，终态永远是给调用方一个应答
type ChatService struct {
	planner       *Planner
	fetcher       *Fetcher
	synthesizer   *Synthesizer
	conversations *repository.ConversationRepo
	store         cache.Store
	cacheTTL      time.Duration
}

// NewChatService 创建问答服务
func NewChatService(
	planner *Planner,
	fetcher *Fetcher,
	synthesizer *Synthesizer,
	conversations *repository.ConversationRepo,
	store cache.Store,
	cacheTTL time.Duration,
) *ChatService {
	return &ChatService{
		planner:       planner,
		fetcher:       fetcher,
		synthesizer:   synthesizer,
		conversations: conversations,
		store:         store,
		cacheTTL:      cacheTTL,
	}
}

// Query 处理一次自然语言问答
// 任何内部故障都降级为尽力而为的回答，绝不向调用方抛错
func (s *ChatService) Query(ctx context.Context, user *model.AuthUser, req *model.ChatRequest) (resp *model.ChatResponse) {
	start := time.Now()

	// 客户端传入的会话 ID 只接受 UUID，其余情况重新分配
	conversationID := req.ConversationID
	if !id.IsValid(conversationID) {
		conversationID = id.New()
	}

	// 整体兜底: 管线内部无论出什么问题，终态都是应答；
	// 助手回复在应答确定后入会话窗口，与走哪条路径无关
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("user_id", user.ID).Msg("chat pipeline panicked")
			resp = &model.ChatResponse{
				Message:        apologeticMessage,
				ConversationID: conversationID,
				Timestamp:      time.Now().UTC(),
				Confidence:     0.0,
			}
		}
		s.conversations.Append(ctx, user.ID, model.MessageRoleAssistant, resp.Message)
	}()

	// 用户消息先入会话窗口，再查缓存
	s.conversations.Append(ctx, user.ID, model.MessageRoleUser, req.Message)

	queryHash := hashQuery(user.ID, req.Message)

	// 缓存检查（调用方要求新鲜上下文时跳过）
	if !req.IncludeContext {
		if cached := s.cachedAnswer(ctx, queryHash); cached != nil {
			log.Info().
				Str("user_id", user.ID).
				Dur("latency", time.Since(start)).
				Msg("chat query served from cache")
			return &model.ChatResponse{
				Message:            cached.Message,
				ConversationID:     conversationID,
				Timestamp:          time.Now().UTC(),
				DataSources:        cached.DataSources,
				Confidence:         cached.Confidence,
				SuggestedQuestions: cached.SuggestedQuestions,
			}
		}
	}

	var degradations []model.Degraded

	// 计划
	plan, planDeg := s.planner.Generate(ctx, req.Message)
	if planDeg != nil {
		degradations = append(degradations, *planDeg)
	}

	// 取数
	fetched := s.fetcher.Execute(ctx, plan, user)

	// 合成
	answer, synthDeg := s.synthesizer.Synthesize(ctx, req.Message, fetched)
	if synthDeg != nil {
		degradations = append(degradations, *synthDeg)
	}
	if strings.TrimSpace(answer) == "" {
		answer = apologeticMessage
	}

	// 追问
	suggestions := Suggest(fetched)

	conf := confidence(fetched, planDeg, synthDeg)
	if answer == apologeticMessage {
		conf = 0.0
	}

	// 写缓存（尽力而为，失败只记日志；请求随后被取消也不回滚）
	cached := &model.CachedAnswer{
		Message:            answer,
		DataSources:        fetched.DataSources,
		Confidence:         conf,
		SuggestedQuestions: suggestions,
	}
	if err := cache.SetJSON(ctx, s.store, cache.QueryCacheKey(queryHash), cached, s.cacheTTL); err != nil {
		log.Warn().Err(err).Msg("query result cache write failed")
	}

	for _, d := range degradations {
		log.Info().
			Str("stage", d.Stage).
			Str("reason", d.Reason).
			Str("user_id", user.ID).
			Msg("pipeline stage degraded")
	}
	log.Info().
		Str("user_id", user.ID).
		Int("query_count", len(plan.Queries)).
		Int("data_sources", len(fetched.DataSources)).
		Float64("confidence", conf).
		Dur("latency", time.Since(start)).
		Msg("chat query processed")

	return &model.ChatResponse{
		Message:            answer,
		ConversationID:     conversationID,
		Timestamp:          time.Now().UTC(),
		DataSources:        fetched.DataSources,
		Confidence:         conf,
		SuggestedQuestions: suggestions,
	}
}

// History 读取用户对话窗口
func (s *ChatService) History(ctx context.Context, user *model.AuthUser) *model.Conversation {
	return s.conversations.Get(ctx, user.ID)
}

// ClearHistory 清空用户对话窗口
func (s *ChatService) ClearHistory(ctx context.Context, user *model.AuthUser) {
	s.conversations.Clear(ctx, user.ID)
}

// cachedAnswer 查询结果缓存读取，故障按未命中处理
func (s *ChatService) cachedAnswer(ctx context.Context, queryHash string) *model.CachedAnswer {
	var cached model.CachedAnswer
	if err := cache.GetJSON(ctx, s.store, cache.QueryCacheKey(queryHash), &cached); err != nil {
		return nil
	}
	if cached.Message == "" {
		return nil
	}
	return &cached
}

// confidence 按路径与数据量给出置信度
// 全主路径 0.95；计划降级 0.85；合成降级 0.6；无数据 0.3
func confidence(fetched *model.FetchResult, planDeg, synthDeg *model.Degraded) float64 {
	if fetched == nil || fetched.Empty() {
		return 0.3
	}
	if synthDeg != nil {
		return 0.6
	}
	if planDeg != nil {
		return 0.85
	}
	return 0.95
}

// hashQuery 缓存 key: hash(user_id, 规范化消息)
func hashQuery(userID, message string) string {
	normalized := strings.ToLower(strings.TrimSpace(message))
	sum := sha256.Sum256([]byte(userID + ":" + normalized))
	return hex.EncodeToString(sum[:])
}
