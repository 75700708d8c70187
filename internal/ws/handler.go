package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chatlink-service/internal/middleware"
	"chatlink-service/internal/observability"
)

// Handler upgrades authenticated requests into sessions.
type Handler struct {
	hub      *Hub
	verifier middleware.TokenVerifier
	views    Views
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, verifier middleware.TokenVerifier, views Views, allowOrigin func(*http.Request) bool) *Handler {
	if allowOrigin == nil {
		allowOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		hub:      hub,
		verifier: verifier,
		views:    views,
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
	}
}

// Handle authenticates with the Authorization header or a token query
// parameter, since browsers cannot set headers on WebSocket requests.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chatlink-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
		return
	}
	userID, err := h.verifier.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	session := newSession(conn, info, h.views)
	h.hub.Add(session, info)
	sessionCtx := observability.WithRequestID(context.WithoutCancel(ctx), requestID)
	reason := session.Run(sessionCtx)
	h.hub.Remove(session, reason)
}
