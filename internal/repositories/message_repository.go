package repositories

import (
	"context"
	"fmt"
	"time"

	"chatlink-service/internal/docstore"
	"chatlink-service/internal/errs"
	"chatlink-service/internal/models"
)

var ErrMessageNotFound = fmt.Errorf("message %w", errs.ErrNotFound)

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	Create(ctx context.Context, msg models.Message) error
	Get(ctx context.Context, chatID, messageID string) (models.Message, error)
	UpdateText(ctx context.Context, chatID, messageID, text string, at time.Time) error
	List(ctx context.Context, chatID string) ([]models.Message, error)
	Watch(ctx context.Context, chatID string) (*docstore.Subscription, error)
}

type MessageRepo struct {
	store docstore.Store
}

func NewMessageRepo(store docstore.Store) *MessageRepo {
	return &MessageRepo{store: store}
}

func (r *MessageRepo) Create(ctx context.Context, msg models.Message) error {
	return translate("create message", r.store.Create(ctx, MessagesCollection(msg.ChatID), msg.ID, msg), ErrMessageNotFound)
}

func (r *MessageRepo) Get(ctx context.Context, chatID, messageID string) (models.Message, error) {
	rec, err := r.store.Get(ctx, MessagesCollection(chatID), messageID)
	if err != nil {
		return models.Message{}, translate("get message", err, ErrMessageNotFound)
	}
	return decodeOne[models.Message](rec)
}

// UpdateText replaces the text and marks the message edited.
func (r *MessageRepo) UpdateText(ctx context.Context, chatID, messageID, text string, at time.Time) error {
	return translate("edit message", r.store.Update(ctx, MessagesCollection(chatID), messageID, map[string]any{
		"text":     text,
		"edited":   true,
		"editedAt": at,
	}), ErrMessageNotFound)
}

func messagesQuery(chatID string) docstore.Query {
	return docstore.Query{Collection: MessagesCollection(chatID), OrderBy: "createdAt"}
}

func (r *MessageRepo) List(ctx context.Context, chatID string) ([]models.Message, error) {
	recs, err := r.store.Query(ctx, messagesQuery(chatID))
	if err != nil {
		return nil, translate("list messages", err, ErrMessageNotFound)
	}
	return DecodeAll[models.Message](recs)
}

func (r *MessageRepo) Watch(ctx context.Context, chatID string) (*docstore.Subscription, error) {
	sub, err := r.store.Watch(ctx, messagesQuery(chatID))
	return sub, translate("watch messages", err, ErrMessageNotFound)
}
