package models

import "time"

const selfChatPrefix = "self_"

// Chat is a 1:1 or self conversation. Its id is derived from the participants.
type Chat struct {
	ID             string     `json:"id"`
	ParticipantIDs []string   `json:"participantIds"`
	IsSelfChat     bool       `json:"isSelfChat"`
	LastMessage    string     `json:"lastMessage,omitempty"`
	LastMessageAt  *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// ChatIDFor returns the deterministic chat id for a pair of users.
func ChatIDFor(a, b string) string {
	if a == b {
		return selfChatPrefix + a
	}
	return pairKey(a, b)
}

// NewChat builds the chat record for a and b without timestamps.
func NewChat(a, b string) Chat {
	if a == b {
		return Chat{ID: ChatIDFor(a, b), ParticipantIDs: []string{a}, IsSelfChat: true}
	}
	return Chat{ID: ChatIDFor(a, b), ParticipantIDs: []string{a, b}}
}

// HasParticipant reports whether userID belongs to the chat.
func (c Chat) HasParticipant(userID string) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the peer of userID, or userID itself for a self-chat.
func (c Chat) OtherParticipant(userID string) string {
	for _, id := range c.ParticipantIDs {
		if id != userID {
			return id
		}
	}
	return userID
}

// ChatSummary is a chat as shown in a user's chat list.
type ChatSummary struct {
	Chat
	OtherUser *UserProfile `json:"otherUser,omitempty"`
}
