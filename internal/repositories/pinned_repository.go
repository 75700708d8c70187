package repositories

import (
	"context"
	"fmt"

	"chatlink-service/internal/docstore"
	"chatlink-service/internal/errs"
	"chatlink-service/internal/models"
)

var ErrPinNotFound = fmt.Errorf("pinned message %w", errs.ErrNotFound)

// PinnedRepository stores pinned message snapshots.
type PinnedRepository interface {
	Create(ctx context.Context, pin models.PinnedMessage) error
	Get(ctx context.Context, pinID string) (models.PinnedMessage, error)
	Delete(ctx context.Context, pinID string) error
	ListByChat(ctx context.Context, chatID string, limit int) ([]models.PinnedMessage, error)
	ListByUser(ctx context.Context, userID string) ([]models.PinnedMessage, error)
	WatchChat(ctx context.Context, chatID string) (*docstore.Subscription, error)
}

type PinnedRepo struct {
	store docstore.Store
}

func NewPinnedRepo(store docstore.Store) *PinnedRepo {
	return &PinnedRepo{store: store}
}

func (r *PinnedRepo) Create(ctx context.Context, pin models.PinnedMessage) error {
	return translate("pin message", r.store.Create(ctx, PinnedCollection, pin.ID, pin), ErrPinNotFound)
}

func (r *PinnedRepo) Get(ctx context.Context, pinID string) (models.PinnedMessage, error) {
	rec, err := r.store.Get(ctx, PinnedCollection, pinID)
	if err != nil {
		return models.PinnedMessage{}, translate("get pin", err, ErrPinNotFound)
	}
	return decodeOne[models.PinnedMessage](rec)
}

func (r *PinnedRepo) Delete(ctx context.Context, pinID string) error {
	return translate("unpin message", r.store.Delete(ctx, PinnedCollection, pinID), ErrPinNotFound)
}

func pinsQuery(field, value string, limit int) docstore.Query {
	return docstore.Query{
		Collection: PinnedCollection,
		Filters:    []docstore.Filter{docstore.Where(field, docstore.OpEq, value)},
		OrderBy:    "pinnedAt",
		Descending: true,
		Limit:      limit,
	}
}

// ListByChat returns the newest pins first; limit <= 0 means all.
func (r *PinnedRepo) ListByChat(ctx context.Context, chatID string, limit int) ([]models.PinnedMessage, error) {
	return r.list(ctx, pinsQuery("chatId", chatID, limit))
}

func (r *PinnedRepo) ListByUser(ctx context.Context, userID string) ([]models.PinnedMessage, error) {
	return r.list(ctx, pinsQuery("pinnedBy", userID, 0))
}

func (r *PinnedRepo) list(ctx context.Context, q docstore.Query) ([]models.PinnedMessage, error) {
	recs, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, translate("list pins", err, ErrPinNotFound)
	}
	return DecodeAll[models.PinnedMessage](recs)
}

func (r *PinnedRepo) WatchChat(ctx context.Context, chatID string) (*docstore.Subscription, error) {
	sub, err := r.store.Watch(ctx, pinsQuery("chatId", chatID, 0))
	return sub, translate("watch pins", err, ErrPinNotFound)
}
