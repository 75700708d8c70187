package models

import "time"

type NotificationType string

const (
	NotificationChatRequest     NotificationType = "chat_request"
	NotificationRequestAccepted NotificationType = "request_accepted"
	NotificationRequestDeclined NotificationType = "request_declined"
	NotificationNewMessage      NotificationType = "new_message"
	NotificationNewChat         NotificationType = "new_chat"
)

// Notification is addressed to UserID.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
	RelatedID string           `json:"relatedId,omitempty"`
}

// OutboxEntry is a notification waiting to be delivered.
type OutboxEntry struct {
	ID            string       `json:"id"`
	Notification  Notification `json:"notification"`
	Attempts      int          `json:"attempts"`
	NextAttemptAt time.Time    `json:"nextAttemptAt"`
	LastError     string       `json:"lastError,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}
