package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"chatlink-service/internal/errs"
	"chatlink-service/internal/models"
	"chatlink-service/internal/repositories"
)

// PinnedService keeps denormalized copies of pinned messages.
type PinnedService struct {
	pins     repositories.PinnedRepository
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	now      Clock
}

func NewPinnedService(pins repositories.PinnedRepository, chats repositories.ChatRepository, messages repositories.MessageRepository, users repositories.UserRepository) *PinnedService {
	return &PinnedService{pins: pins, chats: chats, messages: messages, users: users, now: utcNow}
}

func (s *PinnedService) SetClock(now Clock) {
	s.now = now
}

// Pin stores a snapshot of a message. Content and sender name default to the
// current message and its sender. Pinning the same message twice is allowed.
func (s *PinnedService) Pin(ctx context.Context, callerID, chatID, messageID, content, senderName string) (models.PinnedMessage, error) {
	if _, err := participantChat(ctx, s.chats, callerID, chatID); err != nil {
		return models.PinnedMessage{}, err
	}
	if strings.TrimSpace(messageID) == "" {
		return models.PinnedMessage{}, errs.Validation("message id is required")
	}

	if content == "" || senderName == "" {
		msg, err := s.messages.Get(ctx, chatID, messageID)
		if err != nil {
			return models.PinnedMessage{}, err
		}
		if content == "" {
			content = msg.Summary()
		}
		if senderName == "" {
			senderName = "Unknown"
			if sender, err := s.users.Get(ctx, msg.SenderID); err == nil {
				senderName = displayName(sender)
			}
		}
	}

	pin := models.PinnedMessage{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		MessageID:  messageID,
		Content:    content,
		SenderName: senderName,
		PinnedBy:   callerID,
		PinnedAt:   s.now(),
	}
	if err := s.pins.Create(ctx, pin); err != nil {
		return models.PinnedMessage{}, err
	}
	return pin, nil
}

// Unpin hard-deletes a pin. Any participant of its chat may unpin.
func (s *PinnedService) Unpin(ctx context.Context, callerID, pinID string) error {
	if err := requireCaller(callerID); err != nil {
		return err
	}
	pin, err := s.pins.Get(ctx, pinID)
	if err != nil {
		return err
	}
	if _, err := participantChat(ctx, s.chats, callerID, pin.ChatID); err != nil {
		return err
	}
	return s.pins.Delete(ctx, pinID)
}

// List returns the pins of a chat, newest first. limit <= 0 means all.
func (s *PinnedService) List(ctx context.Context, callerID, chatID string, limit int) ([]models.PinnedMessage, error) {
	if _, err := participantChat(ctx, s.chats, callerID, chatID); err != nil {
		return nil, err
	}
	return s.pins.ListByChat(ctx, chatID, limit)
}

// ListMine returns every pin made by callerID across chats.
func (s *PinnedService) ListMine(ctx context.Context, callerID string) ([]models.PinnedMessage, error) {
	if err := requireCaller(callerID); err != nil {
		return nil, err
	}
	return s.pins.ListByUser(ctx, callerID)
}
