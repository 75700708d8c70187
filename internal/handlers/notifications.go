package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	inbox NotificationInbox
}

func NewNotificationHandler(inbox NotificationInbox) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

func (h *NotificationHandler) List(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	ctx := c.Request.Context()
	userID := userIDFromContext(c)
	items, err := h.inbox.List(ctx, userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	unread, err := h.inbox.UnreadCount(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": items, "unread": unread})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.inbox.MarkRead(c.Request.Context(), userIDFromContext(c), c.Param("notification_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkAllRead is best effort: partial failures still report how many were
// marked, with 207 Multi-Status.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	marked, err := h.inbox.MarkAllRead(c.Request.Context(), userIDFromContext(c))
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"marked": marked})
		return
	}
	if marked == 0 {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusMultiStatus, gin.H{"marked": marked, "error": "some notifications could not be marked"})
}
