package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chatlink-service/internal/auth"
	"chatlink-service/internal/models"
)

type AuthMock struct {
	mock.Mock
}

func (m *AuthMock) SignUp(ctx context.Context, email, password, displayName string) (auth.Session, error) {
	args := m.Called(ctx, email, password, displayName)
	var session auth.Session
	if val := args.Get(0); val != nil {
		session = val.(auth.Session)
	}
	return session, args.Error(1)
}

func (m *AuthMock) Login(ctx context.Context, email, password string) (auth.Session, error) {
	args := m.Called(ctx, email, password)
	var session auth.Session
	if val := args.Get(0); val != nil {
		session = val.(auth.Session)
	}
	return session, args.Error(1)
}

func (m *AuthMock) ChangePassword(ctx context.Context, userID, current, next string) error {
	args := m.Called(ctx, userID, current, next)
	return args.Error(0)
}

func (m *AuthMock) Verify(token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}

type PresenceMock struct {
	mock.Mock
}

func (m *PresenceMock) Get(ctx context.Context, userID string) (models.Presence, error) {
	args := m.Called(ctx, userID)
	var p models.Presence
	if val := args.Get(0); val != nil {
		p = val.(models.Presence)
	}
	return p, args.Error(1)
}

func (m *PresenceMock) SetOffline(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type UserDirectoryMock struct {
	mock.Mock
}

func (m *UserDirectoryMock) Get(ctx context.Context, userID string) (models.UserProfile, error) {
	args := m.Called(ctx, userID)
	var user models.UserProfile
	if val := args.Get(0); val != nil {
		user = val.(models.UserProfile)
	}
	return user, args.Error(1)
}

func (m *UserDirectoryMock) Search(ctx context.Context, callerID, query string) ([]models.UserProfile, error) {
	args := m.Called(ctx, callerID, query)
	var users []models.UserProfile
	if val := args.Get(0); val != nil {
		users = val.([]models.UserProfile)
	}
	return users, args.Error(1)
}

func (m *UserDirectoryMock) UpdateProfile(ctx context.Context, callerID string, update models.ProfileUpdate) (models.UserProfile, error) {
	args := m.Called(ctx, callerID, update)
	var user models.UserProfile
	if val := args.Get(0); val != nil {
		user = val.(models.UserProfile)
	}
	return user, args.Error(1)
}

type ChatRequestWorkflowMock struct {
	mock.Mock
}

func (m *ChatRequestWorkflowMock) Send(ctx context.Context, fromID, toID string) (models.SendResult, error) {
	args := m.Called(ctx, fromID, toID)
	var res models.SendResult
	if val := args.Get(0); val != nil {
		res = val.(models.SendResult)
	}
	return res, args.Error(1)
}

func (m *ChatRequestWorkflowMock) Respond(ctx context.Context, callerID, requestID string, accept bool) (models.ChatRequest, error) {
	args := m.Called(ctx, callerID, requestID, accept)
	var req models.ChatRequest
	if val := args.Get(0); val != nil {
		req = val.(models.ChatRequest)
	}
	return req, args.Error(1)
}

func (m *ChatRequestWorkflowMock) Cancel(ctx context.Context, callerID, requestID string) error {
	args := m.Called(ctx, callerID, requestID)
	return args.Error(0)
}

func (m *ChatRequestWorkflowMock) Incoming(ctx context.Context, userID string) ([]models.ChatRequest, error) {
	args := m.Called(ctx, userID)
	var reqs []models.ChatRequest
	if val := args.Get(0); val != nil {
		reqs = val.([]models.ChatRequest)
	}
	return reqs, args.Error(1)
}

func (m *ChatRequestWorkflowMock) Sent(ctx context.Context, userID string) ([]models.ChatRequest, error) {
	args := m.Called(ctx, userID)
	var reqs []models.ChatRequest
	if val := args.Get(0); val != nil {
		reqs = val.([]models.ChatRequest)
	}
	return reqs, args.Error(1)
}

type ChatMessagingMock struct {
	mock.Mock
}

func (m *ChatMessagingMock) CreateChat(ctx context.Context, a, b string) (models.Chat, bool, error) {
	args := m.Called(ctx, a, b)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Bool(1), args.Error(2)
}

func (m *ChatMessagingMock) ListChats(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	args := m.Called(ctx, userID)
	var chats []models.ChatSummary
	if val := args.Get(0); val != nil {
		chats = val.([]models.ChatSummary)
	}
	return chats, args.Error(1)
}

func (m *ChatMessagingMock) Messages(ctx context.Context, callerID, chatID string) ([]models.Message, error) {
	args := m.Called(ctx, callerID, chatID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *ChatMessagingMock) SendMessage(ctx context.Context, senderID, chatID string, in models.MessageInput) (models.Message, error) {
	args := m.Called(ctx, senderID, chatID, in)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ChatMessagingMock) EditMessage(ctx context.Context, callerID, chatID, messageID, newText string) (models.Message, error) {
	args := m.Called(ctx, callerID, chatID, messageID, newText)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type PinStoreMock struct {
	mock.Mock
}

func (m *PinStoreMock) Pin(ctx context.Context, callerID, chatID, messageID, content, senderName string) (models.PinnedMessage, error) {
	args := m.Called(ctx, callerID, chatID, messageID, content, senderName)
	var pin models.PinnedMessage
	if val := args.Get(0); val != nil {
		pin = val.(models.PinnedMessage)
	}
	return pin, args.Error(1)
}

func (m *PinStoreMock) Unpin(ctx context.Context, callerID, pinID string) error {
	args := m.Called(ctx, callerID, pinID)
	return args.Error(0)
}

func (m *PinStoreMock) List(ctx context.Context, callerID, chatID string, limit int) ([]models.PinnedMessage, error) {
	args := m.Called(ctx, callerID, chatID, limit)
	var pins []models.PinnedMessage
	if val := args.Get(0); val != nil {
		pins = val.([]models.PinnedMessage)
	}
	return pins, args.Error(1)
}

func (m *PinStoreMock) ListMine(ctx context.Context, callerID string) ([]models.PinnedMessage, error) {
	args := m.Called(ctx, callerID)
	var pins []models.PinnedMessage
	if val := args.Get(0); val != nil {
		pins = val.([]models.PinnedMessage)
	}
	return pins, args.Error(1)
}

type NotificationInboxMock struct {
	mock.Mock
}

func (m *NotificationInboxMock) List(ctx context.Context, callerID string, limit int) ([]models.Notification, error) {
	args := m.Called(ctx, callerID, limit)
	var items []models.Notification
	if val := args.Get(0); val != nil {
		items = val.([]models.Notification)
	}
	return items, args.Error(1)
}

func (m *NotificationInboxMock) UnreadCount(ctx context.Context, callerID string) (int, error) {
	args := m.Called(ctx, callerID)
	return args.Int(0), args.Error(1)
}

func (m *NotificationInboxMock) MarkRead(ctx context.Context, callerID, notificationID string) error {
	args := m.Called(ctx, callerID, notificationID)
	return args.Error(0)
}

func (m *NotificationInboxMock) MarkAllRead(ctx context.Context, callerID string) (int, error) {
	args := m.Called(ctx, callerID)
	return args.Int(0), args.Error(1)
}
