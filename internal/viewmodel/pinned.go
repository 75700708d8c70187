package viewmodel

import (
	"context"

	"chatlink-service/internal/docstore"
	"chatlink-service/internal/errs"
	"chatlink-service/internal/models"
	"chatlink-service/internal/repositories"
)

type PinnedState struct {
	ChatID string                 `json:"chatId"`
	Inline []models.PinnedMessage `json:"inline"`
	All    []models.PinnedMessage `json:"all"`
	Err    string                 `json:"error,omitempty"`
}

// PinnedView follows the pins of one chat, newest first.
type PinnedView struct {
	base[PinnedState]
	viewerID string
	pins     repositories.PinnedRepository
	chats    repositories.ChatRepository
	chatID   string
}

func NewPinnedView(viewerID string, pins repositories.PinnedRepository, chats repositories.ChatRepository) *PinnedView {
	v := &PinnedView{viewerID: viewerID, pins: pins, chats: chats}
	v.pub = NewPublisher[PinnedState]()
	return v
}

// Open switches to chatID; the viewer must participate in it.
func (v *PinnedView) Open(ctx context.Context, chatID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.chatID = chatID
	return v.start(ctx)
}

func (v *PinnedView) Retry(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.chatID == "" {
		return nil
	}
	return v.start(ctx)
}

func (v *PinnedView) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reset()
	v.chatID = ""
	v.pub.Publish(PinnedState{Inline: []models.PinnedMessage{}, All: []models.PinnedMessage{}})
}

func (v *PinnedView) start(ctx context.Context) error {
	gen := v.reset()
	chatID := v.chatID
	err := v.authorize(ctx, chatID)
	if err == nil {
		err = v.attach(ctx, "pins",
			func(ctx context.Context) (*docstore.Subscription, error) {
				return v.pins.WatchChat(ctx, chatID)
			},
			func(_ context.Context, snap docstore.Snapshot) error {
				pins, err := repositories.DecodeAll[models.PinnedMessage](snap.Records)
				if err != nil {
					return err
				}
				v.mu.Lock()
				defer v.mu.Unlock()
				if v.gen == gen {
					v.pub.Publish(splitPins(chatID, pins))
				}
				return nil
			},
			func(err error) { v.fail(gen, chatID, err) },
		)
	}
	if err != nil {
		v.reset()
		v.pub.Publish(PinnedState{ChatID: chatID, Inline: []models.PinnedMessage{}, All: []models.PinnedMessage{}, Err: err.Error()})
	}
	return err
}

func (v *PinnedView) authorize(ctx context.Context, chatID string) error {
	chat, err := v.chats.Get(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(v.viewerID) {
		return errs.ErrPermission
	}
	return nil
}

func (v *PinnedView) fail(gen uint64, chatID string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen != gen {
		return
	}
	v.reset()
	v.pub.Publish(PinnedState{ChatID: chatID, Inline: []models.PinnedMessage{}, All: []models.PinnedMessage{}, Err: err.Error()})
}

// splitPins expects pins ordered pinnedAt desc.
func splitPins(chatID string, pins []models.PinnedMessage) PinnedState {
	inline := pins
	if len(inline) > models.InlinePinLimit {
		inline = inline[:models.InlinePinLimit]
	}
	return PinnedState{
		ChatID: chatID,
		Inline: append([]models.PinnedMessage{}, inline...),
		All:    pins,
	}
}
