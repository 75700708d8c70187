package models

import "time"

type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageImage MessageKind = "image"
)

// ImageSummary is the chat summary text of an image sent without a caption.
const ImageSummary = "Sent an image"

// Message belongs to the chat it is stored under.
type Message struct {
	ID        string      `json:"id"`
	ChatID    string      `json:"chatId"`
	SenderID  string      `json:"senderId"`
	Text      string      `json:"text"`
	Kind      MessageKind `json:"kind"`
	ImageURL  string      `json:"imageUrl,omitempty"`
	Edited    bool        `json:"edited"`
	EditedAt  *time.Time  `json:"editedAt,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Summary is the text a chat list shows for the message.
func (m Message) Summary() string {
	if m.Kind == MessageImage && m.Text == "" {
		return ImageSummary
	}
	return m.Text
}

// MessageInput is what a sender submits. ImageURL selects an image message.
type MessageInput struct {
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl"`
}
