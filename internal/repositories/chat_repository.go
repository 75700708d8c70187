package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatlink-service/internal/docstore"
	"chatlink-service/internal/errs"
	"chatlink-service/internal/logger"
	"chatlink-service/internal/models"
)

var ErrChatNotFound = fmt.Errorf("chat %w", errs.ErrNotFound)

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	// CreateIfAbsent stores chat unless its id exists. It reports whether the
	// chat was created; an existing chat is left untouched.
	CreateIfAbsent(ctx context.Context, chat models.Chat) (bool, error)
	Get(ctx context.Context, chatID string) (models.Chat, error)
	UpdateSummary(ctx context.Context, chatID, text string, at time.Time) error
	ListForUser(ctx context.Context, userID string) ([]models.Chat, error)
	WatchForUser(ctx context.Context, userID string) (*docstore.Subscription, error)
	WatchChat(ctx context.Context, chatID string) (*docstore.Subscription, error)
}

type ChatRepo struct {
	store docstore.Store
}

func NewChatRepo(store docstore.Store) *ChatRepo {
	return &ChatRepo{store: store}
}

func (r *ChatRepo) CreateIfAbsent(ctx context.Context, chat models.Chat) (bool, error) {
	err := r.store.Create(ctx, ChatsCollection, chat.ID, chat)
	if errors.Is(err, docstore.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, translate("create chat", err, ErrChatNotFound)
	}
	return true, nil
}

func (r *ChatRepo) Get(ctx context.Context, chatID string) (models.Chat, error) {
	rec, err := r.store.Get(ctx, ChatsCollection, chatID)
	if err != nil {
		return models.Chat{}, translate("get chat", err, ErrChatNotFound)
	}
	return decodeOne[models.Chat](rec)
}

func (r *ChatRepo) UpdateSummary(ctx context.Context, chatID, text string, at time.Time) error {
	return translate("update chat summary", r.store.Update(ctx, ChatsCollection, chatID, map[string]any{
		"lastMessage":   text,
		"lastMessageAt": at,
	}), ErrChatNotFound)
}

// ChatsQuery selects the chats userID takes part in, most recent activity first.
func ChatsQuery(userID string) docstore.Query {
	return docstore.Query{
		Collection: ChatsCollection,
		Filters:    []docstore.Filter{docstore.Where("participantIds", docstore.OpArrayContains, userID)},
		OrderBy:    "lastMessageAt",
		Descending: true,
	}
}

func (r *ChatRepo) ListForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	defer logger.DeferLogDuration("chats.ListForUser", time.Now())()

	recs, err := r.store.Query(ctx, ChatsQuery(userID))
	if err != nil {
		return nil, translate("list chats", err, ErrChatNotFound)
	}
	return DecodeAll[models.Chat](recs)
}

func (r *ChatRepo) WatchForUser(ctx context.Context, userID string) (*docstore.Subscription, error) {
	sub, err := r.store.Watch(ctx, ChatsQuery(userID))
	return sub, translate("watch chats", err, ErrChatNotFound)
}

func (r *ChatRepo) WatchChat(ctx context.Context, chatID string) (*docstore.Subscription, error) {
	sub, err := r.store.Watch(ctx, docstore.Query{
		Collection: ChatsCollection,
		Filters:    []docstore.Filter{docstore.Where(docstore.IDField, docstore.OpEq, chatID)},
	})
	return sub, translate("watch chat", err, ErrChatNotFound)
}
