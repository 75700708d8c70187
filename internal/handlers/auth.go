package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatlink-service/internal/logger"
	"chatlink-service/internal/telemetry"
)

// AuthHandler serves signup, login and logout.
type AuthHandler struct {
	auth     Authenticator
	presence PresenceReader
	sessions SessionCloser
	audit    *telemetry.AuditEmitter
}

// sessions may be nil when no WebSocket hub runs.
func NewAuthHandler(auth Authenticator, presence PresenceReader, sessions SessionCloser, emitter *telemetry.AuditEmitter) *AuthHandler {
	return &AuthHandler{auth: auth, presence: presence, sessions: sessions, audit: emitter}
}

type credentialsRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"displayName"`
}

func (h *AuthHandler) SignUp(c *gin.Context) {
	var req credentialsRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.auth.SignUp(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Set("userID", session.User.ID)
	audit(c, h.audit, telemetry.ActionSignUp, session.User.ID)
	c.JSON(http.StatusCreated, session)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	userID := userIDFromContext(c)
	if err := h.auth.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	audit(c, h.audit, telemetry.ActionPasswordChanged, userID)
	c.Status(http.StatusNoContent)
}

// Logout closes the caller's live sessions and marks them offline. Tokens are
// stateless and stay valid until they expire.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := userIDFromContext(c)
	if h.sessions != nil {
		h.sessions.CloseUser(userID)
	}
	if err := h.presence.SetOffline(c.Request.Context(), userID); err != nil {
		logger.Errorf("logout presence for %s: %v", userID, err)
	}
	c.Status(http.StatusNoContent)
}
