package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatlink-service/internal/models"
)

// ChatHandler manages chat and message endpoints.
type ChatHandler struct {
	chats ChatMessaging
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chats ChatMessaging) *ChatHandler {
	return &ChatHandler{chats: chats}
}

// ListChats returns the chats visible to the authenticated user.
func (h *ChatHandler) ListChats(c *gin.Context) {
	chats, err := h.chats.ListChats(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// StartSelfChat creates or returns the caller's chat with themselves.
func (h *ChatHandler) StartSelfChat(c *gin.Context) {
	userID := userIDFromContext(c)
	chat, created, err := h.chats.CreateChat(c.Request.Context(), userID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, chat)
}

// GetChatMessages returns the messages of a chat, oldest first.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	msgs, err := h.chats.Messages(c.Request.Context(), userIDFromContext(c), c.Param("chat_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostChatMessage stores a text or image message.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	var req models.MessageInput
	if !bindJSON(c, &req) {
		return
	}
	msg, err := h.chats.SendMessage(c.Request.Context(), userIDFromContext(c), c.Param("chat_id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// EditMessage replaces the text of the caller's own message.
func (h *ChatHandler) EditMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if !bindJSON(c, &req) {
		return
	}
	msg, err := h.chats.EditMessage(c.Request.Context(), userIDFromContext(c), c.Param("chat_id"), c.Param("message_id"), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}
