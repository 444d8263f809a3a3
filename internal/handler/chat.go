package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"joule/internal/model"
	"joule/internal/pkg/ctxutil"
	pkghttp "joule/internal/pkg/http"
	"joule/internal/service"
)

// ChatHandler 问答处理器
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler 创建问答处理器
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Query 自然语言问答
// @Summary      自然语言问答
// @Description  对用户的能耗数据做自然语言问答，返回回答、数据来源与追问建议
// @Tags         问答
// @Accept       json
// @Produce      json
// @Param        request  body      model.ChatRequest  true  "问答请求"
// @Success      200     {object}  model.ChatResponse
// @Failure      400     {object}  http.ErrorResponse
// @Failure      401     {object}  http.ErrorResponse
// @Failure      429     {object}  http.ErrorResponse
// @Security     BearerAuth
// @Router       /api/v1/chat/query [post]
func (h *ChatHandler) Query(c *gin.Context) {
	user, ok := ctxutil.GetUser(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, pkghttp.NewErrorResponse(40101, "未授权"))
		return
	}

	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, pkghttp.NewErrorResponse(40001, "Invalid request body", err.Error()))
		return
	}

	resp := h.chatService.Query(c.Request.Context(), user, &req)
	c.JSON(http.StatusOK, resp)
}

// GetConversation 获取对话历史
// @Summary      获取对话历史
// @Description  返回当前用户的对话窗口（最近若干条消息）
// @Tags         问答
// @Produce      json
// @Success      200  {object}  model.Conversation
// @Failure      401  {object}  http.ErrorResponse
// @Security     BearerAuth
// @Router       /api/v1/chat/conversation [get]
func (h *ChatHandler) GetConversation(c *gin.Context) {
	user, ok := ctxutil.GetUser(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, pkghttp.NewErrorResponse(40101, "未授权"))
		return
	}

	conv := h.chatService.History(c.Request.Context(), user)
	if conv == nil {
		conv = &model.Conversation{
			UserID:   user.ID,
			Messages: []model.Message{},
		}
	}
	c.JSON(http.StatusOK, conv)
}

// ClearConversation 清空对话历史
// @Summary      清空对话历史
// @Description  删除当前用户的对话窗口
// @Tags         问答
// @Produce      json
// @Success      200  {object}  http.SuccessResponse
// @Failure      401  {object}  http.ErrorResponse
// @Security     BearerAuth
// @Router       /api/v1/chat/conversation [delete]
func (h *ChatHandler) ClearConversation(c *gin.Context) {
	user, ok := ctxutil.GetUser(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, pkghttp.NewErrorResponse(40101, "未授权"))
		return
	}

	h.chatService.ClearHistory(c.Request.Context(), user)
	c.JSON(http.StatusOK, pkghttp.NewSuccessResponse("Conversation cleared", nil))
}

// Suggestions 获取推荐问题
// @Summary      获取推荐问题
// @Description  返回可问问题目录：完整列表加按主题分组的视图
// @Tags         问答
// @Produce      json
// @Success      200  {object}  service.SuggestionCatalog
// @Failure      401  {object}  http.ErrorResponse
// @Security     BearerAuth
// @Router       /api/v1/chat/suggestions [get]
func (h *ChatHandler) Suggestions(c *gin.Context) {
	if _, ok := ctxutil.GetUser(c.Request.Context()); !ok {
		c.JSON(http.StatusUnauthorized, pkghttp.NewErrorResponse(40101, "未授权"))
		return
	}

	c.JSON(http.StatusOK, service.Catalog())
}
