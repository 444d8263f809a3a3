package model

// ChatRequest 对话请求
type ChatRequest struct {
	Message        string `json:"message" binding:"required,max=500"`
	ConversationID string `json:"conversation_id,omitempty"`
	// IncludeContext 为 true 时跳过查询结果缓存，强制重新取数
	IncludeContext bool `json:"include_context,omitempty"`
}
