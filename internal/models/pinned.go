package models

import "time"

// InlinePinLimit caps the pins shown above a chat.
const InlinePinLimit = 3

// PinnedMessage is a denormalized copy of a message; it does not follow edits.
type PinnedMessage struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chatId"`
	MessageID  string    `json:"messageId"`
	Content    string    `json:"content"`
	SenderName string    `json:"senderName"`
	PinnedBy   string    `json:"pinnedBy"`
	PinnedAt   time.Time `json:"pinnedAt"`
}
