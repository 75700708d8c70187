package viewmodel

import (
	"context"

	"chatlink-service/internal/docstore"
	"chatlink-service/internal/models"
	"chatlink-service/internal/repositories"
)

// Summarizer attaches peer profiles to chats and orders them.
type Summarizer interface {
	Summaries(ctx context.Context, userID string, chats []models.Chat) []models.ChatSummary
}

type ChatListState struct {
	UserID string               `json:"userId"`
	Chats  []models.ChatSummary `json:"chats"`
	Err    string               `json:"error,omitempty"`
}

// ChatListView is the live chat list of one user.
type ChatListView struct {
	base[ChatListState]
	chats     repositories.ChatRepository
	summarize Summarizer
	userID    string
}

func NewChatListView(chats repositories.ChatRepository, summarize Summarizer) *ChatListView {
	v := &ChatListView{chats: chats, summarize: summarize}
	v.pub = NewPublisher[ChatListState]()
	return v
}

// SetUser switches the list to userID. The previous watch is torn down before
// the new one starts; an empty id publishes an empty list.
func (v *ChatListView) SetUser(ctx context.Context, userID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	gen := v.reset()
	v.userID = userID
	if userID == "" {
		v.pub.Publish(ChatListState{Chats: []models.ChatSummary{}})
		return nil
	}
	return v.start(ctx, gen)
}

// Retry re-subscribes after an error.
func (v *ChatListView) Retry(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	gen := v.reset()
	if v.userID == "" {
		return nil
	}
	return v.start(ctx, gen)
}

func (v *ChatListView) start(ctx context.Context, gen uint64) error {
	userID := v.userID
	err := v.attach(ctx, "chats",
		func(ctx context.Context) (*docstore.Subscription, error) {
			return v.chats.WatchForUser(ctx, userID)
		},
		func(ctx context.Context, snap docstore.Snapshot) error {
			chats, err := repositories.DecodeAll[models.Chat](snap.Records)
			if err != nil {
				return err
			}
			summaries := v.summarize.Summaries(ctx, userID, chats)
			v.mu.Lock()
			defer v.mu.Unlock()
			if v.gen == gen {
				v.pub.Publish(ChatListState{UserID: userID, Chats: summaries})
			}
			return nil
		},
		func(err error) { v.fail(gen, err) },
	)
	if err != nil {
		v.reset()
		v.pub.Publish(ChatListState{UserID: userID, Chats: []models.ChatSummary{}, Err: err.Error()})
	}
	return err
}

// fail keeps the error state until Retry or SetUser.
func (v *ChatListView) fail(gen uint64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen != gen {
		return
	}
	v.reset()
	v.pub.Publish(ChatListState{UserID: v.userID, Chats: []models.ChatSummary{}, Err: err.Error()})
}
