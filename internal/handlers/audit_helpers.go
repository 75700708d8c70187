package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatlink-service/internal/observability"
	"chatlink-service/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	c.Request = c.Request.WithContext(observability.WithRequestID(c.Request.Context(), requestID))
	return requestID
}

// userIDFromContext returns the caller set by the auth middleware, or "".
func userIDFromContext(c *gin.Context) string {
	if val, ok := c.Get("userID"); ok {
		if userID, ok := val.(string); ok {
			return userID
		}
	}
	return ""
}

func userIDPtr(c *gin.Context) *string {
	if id := userIDFromContext(c); id != "" {
		return &id
	}
	return nil
}

// audit records a state change of the caller; a nil emitter is a no-op.
func audit(c *gin.Context, emitter *telemetry.AuditEmitter, action, subject string) {
	emitter.Emit(c.Request.Context(), telemetry.Entry{
		Action:    action,
		Subject:   subject,
		RequestID: requestIDFromContext(c),
		UserID:    userIDPtr(c),
	})
}
