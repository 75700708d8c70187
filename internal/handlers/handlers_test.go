package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatlink-service/internal/auth"
	"chatlink-service/internal/errs"
	"chatlink-service/internal/mocks"
	"chatlink-service/internal/models"
	"chatlink-service/internal/repositories"
	"chatlink-service/internal/telemetry"
)

func setupRouter(register func(r *gin.Engine)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "u1")
		c.Next()
	})
	register(r)
	return r
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		errs.ErrUnauthenticated:                 http.StatusUnauthorized,
		fmt.Errorf("x: %w", errs.ErrPermission): http.StatusForbidden,
		repositories.ErrChatNotFound:            http.StatusNotFound,
		repositories.ErrStateChanged:            http.StatusConflict,
		errs.Validation("bad"):                  http.StatusBadRequest,
		errs.Store("op", errors.New("db down")): http.StatusInternalServerError,
		errors.New("unclassified"):              http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}

func TestSignUpCreated(t *testing.T) {
	authSvc := new(mocks.AuthMock)
	handler := NewAuthHandler(authSvc, new(mocks.PresenceMock), nil, nil)
	router := setupRouter(func(r *gin.Engine) { r.POST("/auth/signup", handler.SignUp) })

	authSvc.On("SignUp", mock.Anything, "a@example.com", "secret1", "Alice").
		Return(auth.Session{Token: "tok", User: models.UserProfile{ID: "u9"}}, nil).Once()

	rec := do(router, http.MethodPost, "/auth/signup", `{"email":"a@example.com","password":"secret1","displayName":"Alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp auth.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "tok", resp.Token)
	authSvc.AssertExpectations(t)
}

func TestSignUpRejectsMissingFields(t *testing.T) {
	handler := NewAuthHandler(new(mocks.AuthMock), new(mocks.PresenceMock), nil, nil)
	router := setupRouter(func(r *gin.Engine) { r.POST("/auth/signup", handler.SignUp) })

	rec := do(router, http.MethodPost, "/auth/signup", `{"email":"a@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginUnauthorized(t *testing.T) {
	authSvc := new(mocks.AuthMock)
	handler := NewAuthHandler(authSvc, new(mocks.PresenceMock), nil, nil)
	router := setupRouter(func(r *gin.Engine) { r.POST("/auth/login", handler.Login) })

	authSvc.On("Login", mock.Anything, "a@example.com", "nope").Return(nil, auth.ErrInvalidCredentials).Once()

	rec := do(router, http.MethodPost, "/auth/login", `{"email":"a@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	authSvc.AssertExpectations(t)
}

func TestChangePassword(t *testing.T) {
	authSvc := new(mocks.AuthMock)
	handler := NewAuthHandler(authSvc, new(mocks.PresenceMock), nil, nil)
	router := setupRouter(func(r *gin.Engine) { r.POST("/auth/password", handler.ChangePassword) })

	authSvc.On("ChangePassword", mock.Anything, "u1", "old-secret", "new-secret").Return(nil).Once()
	authSvc.On("ChangePassword", mock.Anything, "u1", "wrong", "new-secret").
		Return(fmt.Errorf("current password is incorrect: %w", errs.ErrPermission)).Once()

	rec := do(router, http.MethodPost, "/auth/password", `{"currentPassword":"old-secret","newPassword":"new-secret"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(router, http.MethodPost, "/auth/password", `{"currentPassword":"wrong","newPassword":"new-secret"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(router, http.MethodPost, "/auth/password", `{"currentPassword":"old-secret"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	authSvc.AssertExpectations(t)
}

type sessionsStub struct{ closed []string }

func (s *sessionsStub) CloseUser(userID string) { s.closed = append(s.closed, userID) }

func TestLogoutMarksOffline(t *testing.T) {
	presence := new(mocks.PresenceMock)
	sessions := &sessionsStub{}
	handler := NewAuthHandler(new(mocks.AuthMock), presence, sessions, nil)
	router := setupRouter(func(r *gin.Engine) { r.POST("/auth/logout", handler.Logout) })

	presence.On("SetOffline", mock.Anything, "u1").Return(nil).Once()

	rec := do(router, http.MethodPost, "/auth/logout", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"u1"}, sessions.closed)
	presence.AssertExpectations(t)
}

func TestSearchUsers(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	handler := NewUserHandler(users, new(mocks.PresenceMock))
	router := setupRouter(func(r *gin.Engine) { r.GET("/users/search", handler.Search) })

	users.On("Search", mock.Anything, "u1", "bo").Return([]models.UserProfile{{ID: "u2", Email: "bob@example.com"}}, nil).Once()

	rec := do(router, http.MethodGet, "/users/search?email=bo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Users []models.UserProfile `json:"users"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Users, 1)
	assert.Equal(t, "u2", resp.Users[0].ID)
	users.AssertExpectations(t)
}

func TestGetPresenceNotFound(t *testing.T) {
	presence := new(mocks.PresenceMock)
	handler := NewUserHandler(new(mocks.UserDirectoryMock), presence)
	router := setupRouter(func(r *gin.Engine) { r.GET("/users/:user_id/presence", handler.GetPresence) })

	presence.On("Get", mock.Anything, "ghost").Return(nil, repositories.ErrUserNotFound).Once()

	rec := do(router, http.MethodGet, "/users/ghost/presence", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	presence.AssertExpectations(t)
}

func TestUpdateMeValidation(t *testing.T) {
	users := new(mocks.UserDirectoryMock)
	handler := NewUserHandler(users, new(mocks.PresenceMock))
	router := setupRouter(func(r *gin.Engine) { r.PATCH("/me", handler.UpdateMe) })

	name := " "
	users.On("UpdateProfile", mock.Anything, "u1", models.ProfileUpdate{DisplayName: &name}).
		Return(nil, errs.Validation("display name is required")).Once()

	rec := do(router, http.MethodPatch, "/me", `{"displayName":" "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	users.AssertExpectations(t)
}

func TestSendChatRequestOutcomes(t *testing.T) {
	workflow := new(mocks.ChatRequestWorkflowMock)
	events := new(mocks.PublisherMock)
	events.On("Publish", mock.Anything, "audit.chat.chat_request_sent", mock.Anything).Return(nil).Once()
	handler := NewChatRequestHandler(workflow, telemetry.NewAuditEmitter(events, "audit.chat", "chatlink-service", "test"))
	router := setupRouter(func(r *gin.Engine) { r.POST("/chat-requests", handler.Send) })

	workflow.On("Send", mock.Anything, "u1", "u2").
		Return(models.SendResult{Outcome: models.OutcomeRequestSent, Request: &models.ChatRequest{ID: "r1"}}, nil).Once()
	workflow.On("Send", mock.Anything, "u1", "u3").
		Return(models.SendResult{Outcome: models.OutcomeAlreadyPending}, nil).Once()

	rec := do(router, http.MethodPost, "/chat-requests", `{"toUserId":"u2"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(router, http.MethodPost, "/chat-requests", `{"toUserId":"u3"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.SendResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, models.OutcomeAlreadyPending, resp.Outcome)
	workflow.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestRespondToChatRequest(t *testing.T) {
	workflow := new(mocks.ChatRequestWorkflowMock)
	handler := NewChatRequestHandler(workflow, nil)
	router := setupRouter(func(r *gin.Engine) {
		r.POST("/chat-requests/:request_id/accept", handler.Accept)
		r.POST("/chat-requests/:request_id/decline", handler.Decline)
	})

	workflow.On("Respond", mock.Anything, "u1", "r1", true).
		Return(models.ChatRequest{ID: "r1", FromUserID: "u2", ToUserID: "u1", Status: models.RequestAccepted}, nil).Once()
	workflow.On("Respond", mock.Anything, "u1", "r2", false).
		Return(nil, fmt.Errorf("respond: %w", errs.ErrPermission)).Once()

	rec := do(router, http.MethodPost, "/chat-requests/r1/accept", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		ChatID string `json:"chatId"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "u1_u2", resp.ChatID)

	rec = do(router, http.MethodPost, "/chat-requests/r2/decline", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	workflow.AssertExpectations(t)
}

func TestCancelChatRequestConflict(t *testing.T) {
	workflow := new(mocks.ChatRequestWorkflowMock)
	handler := NewChatRequestHandler(workflow, nil)
	router := setupRouter(func(r *gin.Engine) { r.DELETE("/chat-requests/:request_id", handler.Cancel) })

	workflow.On("Cancel", mock.Anything, "u1", "r1").Return(errs.InvalidState("request is not pending")).Once()

	rec := do(router, http.MethodDelete, "/chat-requests/r1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	workflow.AssertExpectations(t)
}

func TestListChatsStoreError(t *testing.T) {
	chats := new(mocks.ChatMessagingMock)
	handler := NewChatHandler(chats)
	router := setupRouter(func(r *gin.Engine) { r.GET("/chats", handler.ListChats) })

	chats.On("ListChats", mock.Anything, "u1").Return(nil, errs.Store("list chats", assert.AnError)).Once()

	rec := do(router, http.MethodGet, "/chats", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
	chats.AssertExpectations(t)
}

func TestStartSelfChat(t *testing.T) {
	chats := new(mocks.ChatMessagingMock)
	handler := NewChatHandler(chats)
	router := setupRouter(func(r *gin.Engine) { r.POST("/chats/self", handler.StartSelfChat) })

	chats.On("CreateChat", mock.Anything, "u1", "u1").Return(models.NewChat("u1", "u1"), true, nil).Once()
	chats.On("CreateChat", mock.Anything, "u1", "u1").Return(models.NewChat("u1", "u1"), false, nil).Once()

	assert.Equal(t, http.StatusCreated, do(router, http.MethodPost, "/chats/self", "").Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodPost, "/chats/self", "").Code)
	chats.AssertExpectations(t)
}

func TestPostAndEditMessage(t *testing.T) {
	chats := new(mocks.ChatMessagingMock)
	handler := NewChatHandler(chats)
	router := setupRouter(func(r *gin.Engine) {
		r.POST("/chats/:chat_id/messages", handler.PostChatMessage)
		r.PATCH("/chats/:chat_id/messages/:message_id", handler.EditMessage)
	})

	chats.On("SendMessage", mock.Anything, "u1", "u1_u2", models.MessageInput{Text: "hello"}).
		Return(models.Message{ID: "m1", Text: "hello"}, nil).Once()
	chats.On("EditMessage", mock.Anything, "u1", "u1_u2", "m1", "").
		Return(nil, errs.Validation("text is required")).Once()

	rec := do(router, http.MethodPost, "/chats/u1_u2/messages", `{"text":"hello"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(router, http.MethodPatch, "/chats/u1_u2/messages/m1", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	chats.AssertExpectations(t)
}

func TestPinRoutes(t *testing.T) {
	pins := new(mocks.PinStoreMock)
	handler := NewPinHandler(pins)
	router := setupRouter(func(r *gin.Engine) {
		r.GET("/chats/:chat_id/pins", handler.ListChatPins)
		r.POST("/chats/:chat_id/pins", handler.PinMessage)
		r.DELETE("/pins/:pin_id", handler.Unpin)
	})

	pins.On("List", mock.Anything, "u1", "c1", 3).Return([]models.PinnedMessage{{ID: "p1"}}, nil).Once()
	pins.On("Pin", mock.Anything, "u1", "c1", "m1", "", "").Return(models.PinnedMessage{ID: "p2"}, nil).Once()
	pins.On("Unpin", mock.Anything, "u1", "p9").Return(repositories.ErrPinNotFound).Once()

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/chats/c1/pins?limit=3", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/chats/c1/pins?limit=x", "").Code)
	assert.Equal(t, http.StatusCreated, do(router, http.MethodPost, "/chats/c1/pins", `{"messageId":"m1"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodDelete, "/pins/p9", "").Code)
	pins.AssertExpectations(t)
}

func TestNotificationRoutes(t *testing.T) {
	inbox := new(mocks.NotificationInboxMock)
	handler := NewNotificationHandler(inbox)
	router := setupRouter(func(r *gin.Engine) {
		r.GET("/notifications", handler.List)
		r.POST("/notifications/read-all", handler.MarkAllRead)
	})

	inbox.On("List", mock.Anything, "u1", 0).Return([]models.Notification{{ID: "n1"}}, nil).Once()
	inbox.On("UnreadCount", mock.Anything, "u1").Return(1, nil).Once()
	inbox.On("MarkAllRead", mock.Anything, "u1").Return(2, errors.New("n3 failed")).Once()

	rec := do(router, http.MethodGet, "/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Unread int `json:"unread"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Unread)

	rec = do(router, http.MethodPost, "/notifications/read-all", "")
	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	inbox.AssertExpectations(t)
}
