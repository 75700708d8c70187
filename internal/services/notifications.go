package services

import (
	"context"
	"errors"
	"fmt"

	"chatlink-service/internal/errs"
	"chatlink-service/internal/logger"
	"chatlink-service/internal/models"
	"chatlink-service/internal/repositories"
)

const defaultFeedLimit = 50

type NotificationService struct {
	notifications repositories.NotificationRepository
}

func NewNotificationService(notifications repositories.NotificationRepository) *NotificationService {
	return &NotificationService{notifications: notifications}
}

// List returns the newest notifications of callerID.
func (s *NotificationService) List(ctx context.Context, callerID string, limit int) ([]models.Notification, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	return s.notifications.ListForUser(ctx, callerID, limit)
}

func (s *NotificationService) UnreadCount(ctx context.Context, callerID string) (int, error) {
	if err := requireCaller(callerID); err != nil {
		return 0, err
	}
	unread, err := s.notifications.ListUnread(ctx, callerID)
	return len(unread), err
}

// MarkRead marks one notification of callerID as read.
func (s *NotificationService) MarkRead(ctx context.Context, callerID, notificationID string) error {
	if err := requireCaller(callerID); err != nil {
		return err
	}
	n, err := s.notifications.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	if n.UserID != callerID {
		return fmt.Errorf("notification belongs to another user: %w", errs.ErrPermission)
	}
	if n.Read {
		return nil
	}
	return s.notifications.MarkRead(ctx, notificationID)
}

// MarkAllRead marks every unread notification of callerID. It keeps going
// past failures and reports how many were marked plus the joined errors.
func (s *NotificationService) MarkAllRead(ctx context.Context, callerID string) (int, error) {
	if err := requireCaller(callerID); err != nil {
		return 0, err
	}
	unread, err := s.notifications.ListUnread(ctx, callerID)
	if err != nil {
		return 0, err
	}

	var marked int
	var failures []error
	for _, n := range unread {
		if err := s.notifications.MarkRead(ctx, n.ID); err != nil {
			failures = append(failures, fmt.Errorf("notification %s: %w", n.ID, err))
			continue
		}
		marked++
	}
	if len(failures) > 0 {
		logger.Errorf("mark all read for %s: %d of %d failed", callerID, len(failures), len(unread))
	}
	return marked, errors.Join(failures...)
}
