package handlers

import (
	"context"

	"chatlink-service/internal/auth"
	"chatlink-service/internal/models"
)

// The handlers depend on these narrow views of the services so tests can
// substitute mocks.

type Authenticator interface {
	SignUp(ctx context.Context, email, password, displayName string) (auth.Session, error)
	Login(ctx context.Context, email, password string) (auth.Session, error)
	ChangePassword(ctx context.Context, userID, current, next string) error
}

type PresenceReader interface {
	Get(ctx context.Context, userID string) (models.Presence, error)
	SetOffline(ctx context.Context, userID string) error
}

type SessionCloser interface {
	CloseUser(userID string)
}

type UserDirectory interface {
	Get(ctx context.Context, userID string) (models.UserProfile, error)
	Search(ctx context.Context, callerID, query string) ([]models.UserProfile, error)
	UpdateProfile(ctx context.Context, callerID string, update models.ProfileUpdate) (models.UserProfile, error)
}

type ChatRequestWorkflow interface {
	Send(ctx context.Context, fromID, toID string) (models.SendResult, error)
	Respond(ctx context.Context, callerID, requestID string, accept bool) (models.ChatRequest, error)
	Cancel(ctx context.Context, callerID, requestID string) error
	Incoming(ctx context.Context, userID string) ([]models.ChatRequest, error)
	Sent(ctx context.Context, userID string) ([]models.ChatRequest, error)
}

type ChatMessaging interface {
	CreateChat(ctx context.Context, a, b string) (models.Chat, bool, error)
	ListChats(ctx context.Context, userID string) ([]models.ChatSummary, error)
	Messages(ctx context.Context, callerID, chatID string) ([]models.Message, error)
	SendMessage(ctx context.Context, senderID, chatID string, in models.MessageInput) (models.Message, error)
	EditMessage(ctx context.Context, callerID, chatID, messageID, newText string) (models.Message, error)
}

type PinStore interface {
	Pin(ctx context.Context, callerID, chatID, messageID, content, senderName string) (models.PinnedMessage, error)
	Unpin(ctx context.Context, callerID, pinID string) error
	List(ctx context.Context, callerID, chatID string, limit int) ([]models.PinnedMessage, error)
	ListMine(ctx context.Context, callerID string) ([]models.PinnedMessage, error)
}

type NotificationInbox interface {
	List(ctx context.Context, callerID string, limit int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, callerID string) (int, error)
	MarkRead(ctx context.Context, callerID, notificationID string) error
	MarkAllRead(ctx context.Context, callerID string) (int, error)
}
