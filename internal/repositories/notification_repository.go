package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatlink-service/internal/docstore"
	"chatlink-service/internal/errs"
	"chatlink-service/internal/models"
)

var (
	ErrNotificationNotFound = fmt.Errorf("notification %w", errs.ErrNotFound)
	ErrOutboxEntryNotFound  = fmt.Errorf("outbox entry %w", errs.ErrNotFound)
)

// NotificationRepository stores the notification feed.
type NotificationRepository interface {
	// Create is idempotent on the notification id.
	Create(ctx context.Context, n models.Notification) error
	Get(ctx context.Context, notificationID string) (models.Notification, error)
	MarkRead(ctx context.Context, notificationID string) error
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	ListUnread(ctx context.Context, userID string) ([]models.Notification, error)
	Watch(ctx context.Context, userID string) (*docstore.Subscription, error)
}

type NotificationRepo struct {
	store docstore.Store
}

func NewNotificationRepo(store docstore.Store) *NotificationRepo {
	return &NotificationRepo{store: store}
}

func (r *NotificationRepo) Create(ctx context.Context, n models.Notification) error {
	err := r.store.Create(ctx, NotificationsCollection, n.ID, n)
	if errors.Is(err, docstore.ErrConflict) {
		return nil
	}
	return translate("create notification", err, ErrNotificationNotFound)
}

func (r *NotificationRepo) Get(ctx context.Context, notificationID string) (models.Notification, error) {
	rec, err := r.store.Get(ctx, NotificationsCollection, notificationID)
	if err != nil {
		return models.Notification{}, translate("get notification", err, ErrNotificationNotFound)
	}
	return decodeOne[models.Notification](rec)
}

func (r *NotificationRepo) MarkRead(ctx context.Context, notificationID string) error {
	return translate("mark notification read",
		r.store.Update(ctx, NotificationsCollection, notificationID, map[string]any{"read": true}),
		ErrNotificationNotFound)
}

// FeedQuery selects the notifications of userID, newest first.
func FeedQuery(userID string, limit int) docstore.Query {
	return docstore.Query{
		Collection: NotificationsCollection,
		Filters:    []docstore.Filter{docstore.Where("userId", docstore.OpEq, userID)},
		OrderBy:    "createdAt",
		Descending: true,
		Limit:      limit,
	}
}

func (r *NotificationRepo) ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	return r.list(ctx, FeedQuery(userID, limit))
}

func (r *NotificationRepo) ListUnread(ctx context.Context, userID string) ([]models.Notification, error) {
	q := FeedQuery(userID, 0)
	q.Filters = append(q.Filters, docstore.Where("read", docstore.OpEq, false))
	return r.list(ctx, q)
}

func (r *NotificationRepo) list(ctx context.Context, q docstore.Query) ([]models.Notification, error) {
	recs, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, translate("list notifications", err, ErrNotificationNotFound)
	}
	return DecodeAll[models.Notification](recs)
}

func (r *NotificationRepo) Watch(ctx context.Context, userID string) (*docstore.Subscription, error) {
	sub, err := r.store.Watch(ctx, FeedQuery(userID, 0))
	return sub, translate("watch notifications", err, ErrNotificationNotFound)
}

// OutboxRepository holds notifications waiting for delivery.
type OutboxRepository interface {
	Create(ctx context.Context, entry models.OutboxEntry) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.OutboxEntry, error)
	Reschedule(ctx context.Context, entryID string, attempts int, next time.Time, lastErr string) error
	Delete(ctx context.Context, entryID string) error
	Watch(ctx context.Context) (*docstore.Subscription, error)
}

type OutboxRepo struct {
	store docstore.Store
}

func NewOutboxRepo(store docstore.Store) *OutboxRepo {
	return &OutboxRepo{store: store}
}

func (r *OutboxRepo) Create(ctx context.Context, entry models.OutboxEntry) error {
	return translate("enqueue notification", r.store.Create(ctx, OutboxCollection, entry.ID, entry), ErrOutboxEntryNotFound)
}

func outboxQuery() docstore.Query {
	return docstore.Query{Collection: OutboxCollection, OrderBy: "nextAttemptAt"}
}

// ListDue returns entries whose next attempt is not after now, oldest first.
func (r *OutboxRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]models.OutboxEntry, error) {
	recs, err := r.store.Query(ctx, outboxQuery())
	if err != nil {
		return nil, translate("list outbox", err, ErrOutboxEntryNotFound)
	}
	entries, err := DecodeAll[models.OutboxEntry](recs)
	if err != nil {
		return nil, err
	}
	due := entries[:0]
	for _, e := range entries {
		if e.NextAttemptAt.After(now) {
			break
		}
		due = append(due, e)
		if limit > 0 && len(due) == limit {
			break
		}
	}
	return due, nil
}

func (r *OutboxRepo) Reschedule(ctx context.Context, entryID string, attempts int, next time.Time, lastErr string) error {
	return translate("reschedule outbox entry", r.store.Update(ctx, OutboxCollection, entryID, map[string]any{
		"attempts":      attempts,
		"nextAttemptAt": next,
		"lastError":     lastErr,
	}), ErrOutboxEntryNotFound)
}

func (r *OutboxRepo) Delete(ctx context.Context, entryID string) error {
	return translate("delete outbox entry", r.store.Delete(ctx, OutboxCollection, entryID), ErrOutboxEntryNotFound)
}

// Watch emits the whole outbox whenever it changes.
func (r *OutboxRepo) Watch(ctx context.Context) (*docstore.Subscription, error) {
	sub, err := r.store.Watch(ctx, outboxQuery())
	return sub, translate("watch outbox", err, ErrOutboxEntryNotFound)
}
