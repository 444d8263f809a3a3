package model

import "time"

// ChatResponse 对话响应
type ChatResponse struct {
	Message            string    `json:"message"`
	ConversationID     string    `json:"conversation_id"`
	Timestamp          time.Time `json:"timestamp"`
	DataSources        []string  `json:"data_sources,omitempty"`
	Confidence         float64   `json:"confidence"`
	SuggestedQuestions []string  `json:"suggested_questions,omitempty"`
}

// CachedAnswer 查询结果缓存条目
// key 为 hash(user_id, 规范化消息)；TTL 内同一问题直接返回缓存内容
type CachedAnswer struct {
	Message            string   `json:"message"`
	DataSources        []string `json:"data_sources,omitempty"`
	Confidence         float64  `json:"confidence"`
	SuggestedQuestions []string `json:"suggested_questions,omitempty"`
}
