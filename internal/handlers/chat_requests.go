package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatlink-service/internal/models"
	"chatlink-service/internal/telemetry"
)

// ChatRequestHandler serves the chat request workflow.
type ChatRequestHandler struct {
	requests ChatRequestWorkflow
	audit    *telemetry.AuditEmitter
}

func NewChatRequestHandler(requests ChatRequestWorkflow, emitter *telemetry.AuditEmitter) *ChatRequestHandler {
	return &ChatRequestHandler{requests: requests, audit: emitter}
}

// Send answers 201 when a request was created and 200 for every other outcome.
func (h *ChatRequestHandler) Send(c *gin.Context) {
	var req struct {
		ToUserID string `json:"toUserId" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.requests.Send(c.Request.Context(), userIDFromContext(c), req.ToUserID)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if result.Outcome == models.OutcomeRequestSent {
		status = http.StatusCreated
		subject := req.ToUserID
		if result.Request != nil {
			subject = result.Request.ID
		}
		audit(c, h.audit, telemetry.ActionRequestSent, subject)
	}
	c.JSON(status, result)
}

func (h *ChatRequestHandler) Incoming(c *gin.Context) {
	reqs, err := h.requests.Incoming(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

func (h *ChatRequestHandler) Sent(c *gin.Context) {
	reqs, err := h.requests.Sent(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

func (h *ChatRequestHandler) Accept(c *gin.Context) {
	h.respond(c, true)
}

func (h *ChatRequestHandler) Decline(c *gin.Context) {
	h.respond(c, false)
}

func (h *ChatRequestHandler) respond(c *gin.Context, accept bool) {
	requestID := c.Param("request_id")
	req, err := h.requests.Respond(c.Request.Context(), userIDFromContext(c), requestID, accept)
	if err != nil {
		respondError(c, err)
		return
	}
	action := telemetry.ActionRequestDeclined
	if accept {
		action = telemetry.ActionRequestAccepted
	}
	audit(c, h.audit, action, requestID)
	resp := gin.H{"request": req}
	if accept {
		resp["chatId"] = models.ChatIDFor(req.FromUserID, req.ToUserID)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ChatRequestHandler) Cancel(c *gin.Context) {
	requestID := c.Param("request_id")
	if err := h.requests.Cancel(c.Request.Context(), userIDFromContext(c), requestID); err != nil {
		respondError(c, err)
		return
	}
	audit(c, h.audit, telemetry.ActionRequestCanceled, requestID)
	c.Status(http.StatusNoContent)
}
