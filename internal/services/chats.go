package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"chatlink-service/internal/errs"
	"chatlink-service/internal/logger"
	"chatlink-service/internal/models"
	"chatlink-service/internal/observability"
	"chatlink-service/internal/repositories"
)

const notificationPreviewLen = 80

// ChatService creates chats and appends or edits their messages.
type ChatService struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	notifier Notifier
	prober   ImageProber
	now      Clock
}

func NewChatService(chats repositories.ChatRepository, messages repositories.MessageRepository, users repositories.UserRepository, notifier Notifier, prober ImageProber) *ChatService {
	if prober == nil {
		prober = NoopImageProber{}
	}
	return &ChatService{
		chats:    chats,
		messages: messages,
		users:    users,
		notifier: notifier,
		prober:   prober,
		now:      utcNow,
	}
}

// SetClock replaces the time source.
func (s *ChatService) SetClock(now Clock) {
	s.now = now
}

// CreateChat returns the chat of a and b, creating it if absent. An existing
// chat is returned as stored, summary included.
func (s *ChatService) CreateChat(ctx context.Context, a, b string) (models.Chat, bool, error) {
	if a == "" || b == "" {
		return models.Chat{}, false, errs.Validation("chat needs participants")
	}
	chat := models.NewChat(a, b)
	chat.CreatedAt = s.now()

	created, err := s.chats.CreateIfAbsent(ctx, chat)
	if err != nil {
		return models.Chat{}, false, err
	}
	if created {
		logger.Infof("chat created id=%s self=%t", chat.ID, chat.IsSelfChat)
		return chat, true, nil
	}
	existing, err := s.chats.Get(ctx, chat.ID)
	if err != nil {
		return models.Chat{}, false, err
	}
	return existing, false, nil
}

// GetChat returns chatID if userID takes part in it.
func (s *ChatService) GetChat(ctx context.Context, userID, chatID string) (models.Chat, error) {
	return participantChat(ctx, s.chats, userID, chatID)
}

// SendMessage appends a text or image message and then updates the chat
// summary. A failed summary update does not undo the message.
func (s *ChatService) SendMessage(ctx context.Context, senderID, chatID string, in models.MessageInput) (msg models.Message, err error) {
	ctx, span := startSpan(ctx, "ChatService.SendMessage", attribute.String("chat.id", chatID))
	defer func() { endSpan(span, err) }()

	chat, err := participantChat(ctx, s.chats, senderID, chatID)
	if err != nil {
		return models.Message{}, err
	}

	text := strings.TrimSpace(in.Text)
	imageURL := strings.TrimSpace(in.ImageURL)
	msg = models.Message{
		ID:       uuid.NewString(),
		ChatID:   chat.ID,
		SenderID: senderID,
		Text:     text,
		Kind:     models.MessageText,
	}
	if imageURL != "" {
		if err := s.prober.Probe(ctx, imageURL); err != nil {
			return models.Message{}, err
		}
		msg.Kind = models.MessageImage
		msg.ImageURL = imageURL
	} else if text == "" {
		return models.Message{}, errs.Validation("message text is empty")
	}
	msg.CreatedAt = s.now()

	if err := s.messages.Create(ctx, msg); err != nil {
		return models.Message{}, err
	}
	observability.IncMessageSent(string(msg.Kind))

	if err := s.chats.UpdateSummary(ctx, chat.ID, msg.Summary(), msg.CreatedAt); err != nil {
		logger.Errorf("update summary of chat %s after message %s: %v", chat.ID, msg.ID, err)
	}

	if !chat.IsSelfChat {
		s.notifyNewMessage(ctx, chat, msg)
	}
	return msg, nil
}

func (s *ChatService) notifyNewMessage(ctx context.Context, chat models.Chat, msg models.Message) {
	name := "Someone"
	if sender, err := s.users.Get(ctx, msg.SenderID); err == nil {
		name = displayName(sender)
	}
	notify(ctx, s.notifier, models.Notification{
		UserID:    chat.OtherParticipant(msg.SenderID),
		Type:      models.NotificationNewMessage,
		Title:     "New message from " + name,
		Message:   preview(msg.Summary()),
		RelatedID: chat.ID,
	})
}

// EditMessage replaces the text of a text message. Only its sender may edit it.
func (s *ChatService) EditMessage(ctx context.Context, callerID, chatID, messageID, newText string) (models.Message, error) {
	if _, err := participantChat(ctx, s.chats, callerID, chatID); err != nil {
		return models.Message{}, err
	}
	msg, err := s.messages.Get(ctx, chatID, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.SenderID != callerID {
		return models.Message{}, fmt.Errorf("only the sender may edit a message: %w", errs.ErrPermission)
	}
	if msg.Kind == models.MessageImage {
		return models.Message{}, errs.InvalidState("image messages cannot be edited")
	}
	text := strings.TrimSpace(newText)
	if text == "" {
		return models.Message{}, errs.Validation("message text is empty")
	}

	at := s.now()
	if err := s.messages.UpdateText(ctx, chatID, messageID, text, at); err != nil {
		return models.Message{}, err
	}
	msg.Text = text
	msg.Edited = true
	msg.EditedAt = &at
	return msg, nil
}

// Messages returns the messages of chatID oldest first.
func (s *ChatService) Messages(ctx context.Context, callerID, chatID string) ([]models.Message, error) {
	if _, err := participantChat(ctx, s.chats, callerID, chatID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.List(ctx, chatID)
	if err != nil {
		return nil, err
	}
	SortMessages(msgs)
	return msgs, nil
}

// ListChats returns the chats of userID with peer profiles, most recent first.
func (s *ChatService) ListChats(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	if err := requireCaller(userID); err != nil {
		return nil, err
	}
	chats, err := s.chats.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.Summaries(ctx, userID, chats), nil
}

// Summaries attaches the other participant's profile to every chat. Profiles
// are looked up per chat; a failed lookup leaves OtherUser empty.
func (s *ChatService) Summaries(ctx context.Context, userID string, chats []models.Chat) []models.ChatSummary {
	out := make([]models.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		summary := models.ChatSummary{Chat: chat}
		peerID := chat.OtherParticipant(userID)
		if peer, err := s.users.Get(ctx, peerID); err == nil {
			summary.OtherUser = &peer
		} else {
			logger.Debugf("chat %s: peer %s lookup failed: %v", chat.ID, peerID, err)
		}
		out = append(out, summary)
	}
	SortChats(out)
	return out
}

// SortChats orders by lastMessageAt desc; chats without messages go last,
// newest first.
func SortChats(chats []models.ChatSummary) {
	sort.SliceStable(chats, func(i, j int) bool {
		a, b := chats[i], chats[j]
		switch {
		case a.LastMessageAt != nil && b.LastMessageAt != nil:
			if !a.LastMessageAt.Equal(*b.LastMessageAt) {
				return a.LastMessageAt.After(*b.LastMessageAt)
			}
		case a.LastMessageAt != nil:
			return true
		case b.LastMessageAt != nil:
			return false
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// SortMessages orders by createdAt asc, then id.
func SortMessages(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= notificationPreviewLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:notificationPreviewLen]) + "…"
}
