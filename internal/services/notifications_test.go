package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatlink-service/internal/errs"
	"chatlink-service/internal/models"
	"chatlink-service/internal/repositories"
)

// flakyNotifications fails MarkRead for the ids in fail.
type flakyNotifications struct {
	repositories.NotificationRepository
	fail map[string]bool
}

func (r flakyNotifications) MarkRead(ctx context.Context, id string) error {
	if r.fail[id] {
		return errors.New("write rejected")
	}
	return r.NotificationRepository.MarkRead(ctx, id)
}

func seedNotifications(t *testing.T, f *fixture, userID string, ids ...string) {
	t.Helper()
	for i, id := range ids {
		require.NoError(t, f.notifRepo.Create(context.Background(), models.Notification{
			ID:        id,
			UserID:    userID,
			Type:      models.NotificationNewMessage,
			Title:     "t",
			CreatedAt: base.Add(timeStep(i)),
		}))
	}
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedNotifications(t, f, "u1", "n1")

	assert.ErrorIs(t, f.notifications.MarkRead(ctx, "u2", "n1"), errs.ErrPermission)
	assert.ErrorIs(t, f.notifications.MarkRead(ctx, "u1", "missing"), errs.ErrNotFound)
	require.NoError(t, f.notifications.MarkRead(ctx, "u1", "n1"))
	require.NoError(t, f.notifications.MarkRead(ctx, "u1", "n1"))

	count, err := f.notifications.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMarkAllReadIsBestEffort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedNotifications(t, f, "u1", "n1", "n2", "n3")
	seedNotifications(t, f, "u2", "other")

	svc := NewNotificationService(flakyNotifications{NotificationRepository: f.notifRepo, fail: map[string]bool{"n2": true}})
	marked, err := svc.MarkAllRead(ctx, "u1")
	assert.Equal(t, 2, marked)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "n2")

	unread, err := f.notifRepo.ListUnread(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "n2", unread[0].ID)

	others, err := f.notifRepo.ListUnread(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, others, 1)
}

func TestListNotificationsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedNotifications(t, f, "u1", "n1", "n2", "n3")

	list, err := f.notifications.List(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "n3", list[0].ID)
	assert.Equal(t, "n2", list[1].ID)
}
