package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type PinHandler struct {
	pins PinStore
}

func NewPinHandler(pins PinStore) *PinHandler {
	return &PinHandler{pins: pins}
}

// ListChatPins accepts an optional limit; zero means all pins.
func (h *PinHandler) ListChatPins(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	pins, err := h.pins.List(c.Request.Context(), userIDFromContext(c), c.Param("chat_id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pins": pins})
}

func (h *PinHandler) PinMessage(c *gin.Context) {
	var req struct {
		MessageID  string `json:"messageId" binding:"required"`
		Content    string `json:"content"`
		SenderName string `json:"senderName"`
	}
	if !bindJSON(c, &req) {
		return
	}
	pin, err := h.pins.Pin(c.Request.Context(), userIDFromContext(c), c.Param("chat_id"), req.MessageID, req.Content, req.SenderName)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pin)
}

func (h *PinHandler) Unpin(c *gin.Context) {
	if err := h.pins.Unpin(c.Request.Context(), userIDFromContext(c), c.Param("pin_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PinHandler) ListMine(c *gin.Context) {
	pins, err := h.pins.ListMine(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pins": pins})
}
