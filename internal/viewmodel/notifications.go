package viewmodel

import (
	"context"

	"chatlink-service/internal/docstore"
	"chatlink-service/internal/models"
	"chatlink-service/internal/repositories"
)

type NotificationsState struct {
	Items  []models.Notification `json:"items"`
	Unread int                   `json:"unread"`
	Err    string                `json:"error,omitempty"`
}

// NotificationFeed is the live notification list of one recipient.
type NotificationFeed struct {
	base[NotificationsState]
	notifications repositories.NotificationRepository
	userID        string
}

func NewNotificationFeed(notifications repositories.NotificationRepository) *NotificationFeed {
	v := &NotificationFeed{notifications: notifications}
	v.pub = NewPublisher[NotificationsState]()
	return v
}

func (v *NotificationFeed) SetUser(ctx context.Context, userID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.userID = userID
	return v.start(ctx)
}

func (v *NotificationFeed) Retry(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.start(ctx)
}

func (v *NotificationFeed) start(ctx context.Context) error {
	gen := v.reset()
	userID := v.userID
	if userID == "" {
		v.pub.Publish(NotificationsState{Items: []models.Notification{}})
		return nil
	}
	err := v.attach(ctx, "notifications",
		func(ctx context.Context) (*docstore.Subscription, error) {
			return v.notifications.Watch(ctx, userID)
		},
		func(_ context.Context, snap docstore.Snapshot) error {
			items, err := repositories.DecodeAll[models.Notification](snap.Records)
			if err != nil {
				return err
			}
			v.mu.Lock()
			defer v.mu.Unlock()
			if v.gen == gen {
				v.pub.Publish(NotificationsState{Items: items, Unread: Unread(items)})
			}
			return nil
		},
		func(err error) { v.fail(gen, err) },
	)
	if err != nil {
		v.reset()
		v.pub.Publish(NotificationsState{Items: []models.Notification{}, Err: err.Error()})
	}
	return err
}

func (v *NotificationFeed) fail(gen uint64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen != gen {
		return
	}
	v.reset()
	v.pub.Publish(NotificationsState{Items: []models.Notification{}, Err: err.Error()})
}

// Unread counts the unread notifications in items.
func Unread(items []models.Notification) int {
	n := 0
	for _, item := range items {
		if !item.Read {
			n++
		}
	}
	return n
}
