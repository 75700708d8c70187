package viewmodel

import (
	"context"
	"fmt"

	"chatlink-service/internal/docstore"
	"chatlink-service/internal/errs"
	"chatlink-service/internal/models"
	"chatlink-service/internal/repositories"
	"chatlink-service/internal/services"
)

type ChatRoomState struct {
	ChatID   string              `json:"chatId"`
	Chat     *models.Chat        `json:"chat,omitempty"`
	Peer     *models.UserProfile `json:"peer,omitempty"`
	Messages []models.Message    `json:"messages"`
	NotFound bool                `json:"notFound,omitempty"`
	Err      string              `json:"error,omitempty"`
}

// ChatRoomView follows one chat and its messages for a viewer. Messages are
// only published once the chat document confirms the viewer participates.
type ChatRoomView struct {
	base[ChatRoomState]
	viewerID string
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository

	state    ChatRoomState
	loaded   bool
	received []models.Message
}

func NewChatRoomView(viewerID string, chats repositories.ChatRepository, messages repositories.MessageRepository, users repositories.UserRepository) *ChatRoomView {
	v := &ChatRoomView{viewerID: viewerID, chats: chats, messages: messages, users: users}
	v.pub = NewPublisher[ChatRoomState]()
	return v
}

// Open switches the room to chatID. Both watches of the previous chat are torn
// down first.
func (v *ChatRoomView) Open(ctx context.Context, chatID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	gen := v.reset()
	v.state = ChatRoomState{ChatID: chatID, Messages: []models.Message{}}
	v.loaded = false
	v.received = nil
	if chatID == "" {
		return errs.Validation("chat id is required")
	}

	onErr := func(err error) { v.fail(gen, err) }
	err := v.attach(ctx, "room.chat",
		func(ctx context.Context) (*docstore.Subscription, error) {
			return v.chats.WatchChat(ctx, chatID)
		},
		func(ctx context.Context, snap docstore.Snapshot) error {
			return v.onChat(ctx, gen, snap)
		},
		onErr,
	)
	if err == nil {
		err = v.attach(ctx, "room.messages",
			func(ctx context.Context) (*docstore.Subscription, error) {
				return v.messages.Watch(ctx, chatID)
			},
			func(_ context.Context, snap docstore.Snapshot) error {
				return v.onMessages(gen, snap)
			},
			onErr,
		)
	}
	if err != nil {
		v.reset()
		v.state.Err = err.Error()
		v.pub.Publish(v.snapshot())
	}
	return err
}

// ChatID returns the open chat, or "".
func (v *ChatRoomView) ChatID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.ChatID
}

func (v *ChatRoomView) onChat(ctx context.Context, gen uint64, snap docstore.Snapshot) error {
	chats, err := repositories.DecodeAll[models.Chat](snap.Records)
	if err != nil {
		return err
	}
	var chat *models.Chat
	var peer *models.UserProfile
	if len(chats) > 0 {
		c := chats[0]
		if !c.HasParticipant(v.viewerID) {
			return fmt.Errorf("chat %s: %w", c.ID, errs.ErrPermission)
		}
		chat = &c
		if p, err := v.users.Get(ctx, c.OtherParticipant(v.viewerID)); err == nil {
			peer = &p
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen != gen {
		return nil
	}
	v.loaded = true
	v.state.Chat = chat
	v.state.Peer = peer
	v.state.NotFound = chat == nil
	v.pub.Publish(v.snapshot())
	return nil
}

func (v *ChatRoomView) onMessages(gen uint64, snap docstore.Snapshot) error {
	msgs, err := repositories.DecodeAll[models.Message](snap.Records)
	if err != nil {
		return err
	}
	services.SortMessages(msgs)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen != gen {
		return nil
	}
	v.received = msgs
	if v.loaded {
		v.pub.Publish(v.snapshot())
	}
	return nil
}

// snapshot builds the published state. Callers hold v.mu.
func (v *ChatRoomView) snapshot() ChatRoomState {
	s := v.state
	s.Messages = []models.Message{}
	if s.Chat != nil && v.received != nil {
		s.Messages = append(s.Messages, v.received...)
	}
	return s
}

func (v *ChatRoomView) fail(gen uint64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen != gen {
		return
	}
	v.reset()
	v.state.Err = err.Error()
	v.pub.Publish(v.snapshot())
}

// Close tears down both watches and clears the room.
func (v *ChatRoomView) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reset()
	v.state = ChatRoomState{Messages: []models.Message{}}
	v.loaded = false
	v.received = nil
	v.pub.Publish(v.snapshot())
}

// Retry reopens the current chat.
func (v *ChatRoomView) Retry(ctx context.Context) error {
	chatID := v.ChatID()
	if chatID == "" {
		return nil
	}
	return v.Open(ctx, chatID)
}
