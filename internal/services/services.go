// Package services holds the domain operations: the chat request workflow,
// chats and messages, pins, notifications and the user directory.
package services

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chatlink-service/internal/errs"
	"chatlink-service/internal/logger"
	"chatlink-service/internal/models"
	"chatlink-service/internal/repositories"
)

var tracer = otel.Tracer("chatlink-service/services")

// Notifier accepts notifications for asynchronous delivery.
type Notifier interface {
	Enqueue(ctx context.Context, n models.Notification) error
}

// Clock returns the current time. Services default to UTC wall time.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func requireCaller(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errs.ErrUnauthenticated
	}
	return nil
}

// participantChat loads chatID and checks userID takes part in it.
func participantChat(ctx context.Context, chats repositories.ChatRepository, userID, chatID string) (models.Chat, error) {
	if err := requireCaller(userID); err != nil {
		return models.Chat{}, err
	}
	chat, err := chats.Get(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if !chat.HasParticipant(userID) {
		return models.Chat{}, errs.ErrPermission
	}
	return chat, nil
}

// notify hands n to the notifier. Delivery problems never fail the caller.
func notify(ctx context.Context, notifier Notifier, n models.Notification) {
	if notifier == nil {
		return
	}
	if err := notifier.Enqueue(ctx, n); err != nil {
		logger.Errorf("enqueue %s notification for %s: %v", n.Type, n.UserID, err)
	}
}

// displayName falls back to the email when the profile has no name.
func displayName(u models.UserProfile) string {
	if name := strings.TrimSpace(u.DisplayName); name != "" {
		return name
	}
	if u.Email != "" {
		return u.Email
	}
	return "Someone"
}
