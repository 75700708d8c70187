package models

import (
	"sort"
	"strings"
	"time"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestDeclined RequestStatus = "declined"
)

// UserSnapshot is a denormalized copy of a user's display fields.
type UserSnapshot struct {
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

// ChatRequest is a directional proposal to open a chat.
type ChatRequest struct {
	ID          string        `json:"id"`
	FromUserID  string        `json:"fromUserId"`
	ToUserID    string        `json:"toUserId"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	RespondedAt *time.Time    `json:"respondedAt,omitempty"`
	FromUser    *UserSnapshot `json:"fromUser,omitempty"`
	ToUser      *UserSnapshot `json:"toUser,omitempty"`
	// UniqueKey is set only while the request is pending.
	UniqueKey string `json:"uniqueKey,omitempty"`
}

// Active reports whether the request blocks a new one for the same pair.
func (r ChatRequest) Active() bool {
	return r.Status == RequestPending || r.Status == RequestAccepted
}

// PendingKey is the unique key held by the pending request of an unordered pair.
func PendingKey(a, b string) string {
	return "pending:" + pairKey(a, b)
}

func pairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// SendOutcome describes what a chat request send did.
type SendOutcome string

const (
	OutcomeRequestSent        SendOutcome = "request_sent"
	OutcomeAlreadyPending     SendOutcome = "already_pending"
	OutcomeChatExists         SendOutcome = "chat_exists"
	OutcomeCounterpartPending SendOutcome = "counterpart_pending"
	OutcomeSelfChat           SendOutcome = "self_chat"
)

// SendResult is returned by a chat request send.
type SendResult struct {
	Outcome SendOutcome  `json:"outcome"`
	Request *ChatRequest `json:"request,omitempty"`
	ChatID  string       `json:"chatId,omitempty"`
}
