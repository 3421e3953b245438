package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/beunreal/pkg/response"
)

type directRequest struct {
	UserID string `json:"userId" binding:"required"`
}

type groupRequest struct {
	UserIDs []string `json:"userIds" binding:"required,min=1"`
	Name    string   `json:"name" binding:"required"`
	Avatar  string   `json:"avatar"`
}

type messageRequest struct {
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
}

func (h *Handler) ListConversations(c *gin.Context) {
	list, err := h.app.Chat.GetConversations(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

func (h *Handler) GetConversation(c *gin.Context) {
	conv, err := h.app.Chat.GetConversationByID(c.Request.Context(), c.Param("conversation_id"))
	found(c, conv, err, "conversation")
}

// OpenDirect 取得或创建与某用户的私聊
// @Summary 私聊会话
// @Tags 聊天
// @Accept json
// @Param request body directRequest true "对方用户"
// @Success 200 {object} response.Response{data=model.ConversationWithUsers}
// @Router /api/v1/conversations/direct [post]
func (h *Handler) OpenDirect(c *gin.Context) {
	var req directRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	conv, err := h.app.Chat.GetOrCreateConversation(c.Request.Context(), req.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, conv)
}

func (h *Handler) CreateGroup(c *gin.Context) {
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	conv, err := h.app.Chat.CreateGroupConversation(c.Request.Context(), req.UserIDs, req.Name, req.Avatar)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, conv)
}

// ListMessages 返回消息并标记已读
func (h *Handler) ListMessages(c *gin.Context) {
	list, err := h.app.Chat.GetMessages(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, list)
}

// SendMessage 发送消息
// @Summary 发送消息
// @Tags 聊天
// @Accept json
// @Param conversation_id path string true "会话ID"
// @Param request body messageRequest true "消息"
// @Success 201 {object} response.Response{data=model.Message}
// @Router /api/v1/conversations/{conversation_id}/messages [post]
func (h *Handler) SendMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	m, err := h.app.Chat.SendMessage(c.Request.Context(), c.Param("conversation_id"), req.Content, req.ImageURL)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, m)
}

func (h *Handler) MarkRead(c *gin.Context) {
	if err := h.app.Chat.MarkMessagesAsRead(c.Request.Context(), c.Param("conversation_id")); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

func (h *Handler) UnreadCount(c *gin.Context) {
	n, err := h.app.Chat.GetUnreadCount(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"count": n})
}
