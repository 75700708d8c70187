package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"chatlink-service/internal/docstore"
	"chatlink-service/internal/errs"
	"chatlink-service/internal/logger"
	"chatlink-service/internal/models"
	"chatlink-service/internal/observability"
	"chatlink-service/internal/repositories"
)

// ChatCreator creates chats idempotently.
type ChatCreator interface {
	CreateChat(ctx context.Context, a, b string) (models.Chat, bool, error)
}

// ChatRequestService runs the request workflow:
// none -> pending -> accepted|declined, and pending -> none on cancel.
type ChatRequestService struct {
	requests repositories.ChatRequestRepository
	users    repositories.UserRepository
	chats    ChatCreator
	notifier Notifier
	now      Clock
}

func NewChatRequestService(requests repositories.ChatRequestRepository, users repositories.UserRepository, chats ChatCreator, notifier Notifier) *ChatRequestService {
	return &ChatRequestService{
		requests: requests,
		users:    users,
		chats:    chats,
		notifier: notifier,
		now:      utcNow,
	}
}

func (s *ChatRequestService) SetClock(now Clock) {
	s.now = now
}

// Send asks toID to open a chat with fromID. Sending to oneself opens the
// self-chat directly.
func (s *ChatRequestService) Send(ctx context.Context, fromID, toID string) (result models.SendResult, err error) {
	ctx, span := startSpan(ctx, "ChatRequestService.Send",
		attribute.String("request.from", fromID), attribute.String("request.to", toID))
	defer func() {
		endSpan(span, err)
		outcome := string(result.Outcome)
		if err != nil {
			outcome = "error"
		}
		observability.IncChatRequest("send", outcome)
	}()

	if err := requireCaller(fromID); err != nil {
		return models.SendResult{}, err
	}
	toID = strings.TrimSpace(toID)
	if toID == "" {
		return models.SendResult{}, errs.Validation("recipient is required")
	}

	if fromID == toID {
		chat, _, err := s.chats.CreateChat(ctx, fromID, fromID)
		if err != nil {
			return models.SendResult{}, err
		}
		return models.SendResult{Outcome: models.OutcomeSelfChat, ChatID: chat.ID}, nil
	}

	recipient, err := s.users.Get(ctx, toID)
	if err != nil {
		return models.SendResult{}, err
	}

	if result, decided, err := s.existingOutcome(ctx, fromID, toID); err != nil || decided {
		return result, err
	}

	req := models.ChatRequest{
		ID:         uuid.NewString(),
		FromUserID: fromID,
		ToUserID:   toID,
		Status:     models.RequestPending,
		CreatedAt:  s.now(),
		ToUser:     recipient.Snapshot(),
	}
	sender, err := s.users.Get(ctx, fromID)
	switch {
	case err == nil:
		req.FromUser = sender.Snapshot()
	case !errors.Is(err, errs.ErrNotFound):
		return models.SendResult{}, err
	}

	if err := s.requests.Create(ctx, req); err != nil {
		if !errors.Is(err, docstore.ErrConflict) {
			return models.SendResult{}, err
		}
		// Another request for the pair won the race; report that one.
		result, decided, rerr := s.existingOutcome(ctx, fromID, toID)
		if rerr != nil {
			return models.SendResult{}, rerr
		}
		if decided {
			return result, nil
		}
		return models.SendResult{}, fmt.Errorf("request for this pair changed concurrently, retry: %w", errs.ErrInvalidState)
	}
	logger.Infof("chat request sent id=%s from=%s to=%s", req.ID, fromID, toID)

	notify(ctx, s.notifier, models.Notification{
		UserID:    toID,
		Type:      models.NotificationChatRequest,
		Title:     "New chat request",
		Message:   displayName(sender) + " wants to chat with you",
		RelatedID: req.ID,
	})
	req.UniqueKey = ""
	return models.SendResult{Outcome: models.OutcomeRequestSent, Request: &req}, nil
}

// existingOutcome checks the forward direction first, then the reverse one.
// Declined requests never decide the outcome.
func (s *ChatRequestService) existingOutcome(ctx context.Context, fromID, toID string) (models.SendResult, bool, error) {
	forward, err := s.requests.Between(ctx, fromID, toID)
	if err != nil {
		return models.SendResult{}, false, err
	}
	if req, ok := activeRequest(forward); ok {
		if req.Status == models.RequestPending {
			return models.SendResult{Outcome: models.OutcomeAlreadyPending, Request: &req}, true, nil
		}
		return models.SendResult{Outcome: models.OutcomeChatExists, Request: &req, ChatID: models.ChatIDFor(fromID, toID)}, true, nil
	}

	reverse, err := s.requests.Between(ctx, toID, fromID)
	if err != nil {
		return models.SendResult{}, false, err
	}
	if req, ok := activeRequest(reverse); ok {
		if req.Status == models.RequestPending {
			return models.SendResult{Outcome: models.OutcomeCounterpartPending, Request: &req}, true, nil
		}
		return models.SendResult{Outcome: models.OutcomeChatExists, Request: &req, ChatID: models.ChatIDFor(fromID, toID)}, true, nil
	}
	return models.SendResult{}, false, nil
}

// activeRequest picks the pending or accepted request of one direction.
func activeRequest(reqs []models.ChatRequest) (models.ChatRequest, bool) {
	for _, r := range reqs {
		if r.Active() {
			return r, true
		}
	}
	return models.ChatRequest{}, false
}

// Respond accepts or declines a pending request addressed to callerID.
// Accepting again an already accepted request re-runs the idempotent chat
// creation before reporting the invalid state, so an interrupted accept can be
// completed by retrying.
func (s *ChatRequestService) Respond(ctx context.Context, callerID, requestID string, accept bool) (req models.ChatRequest, err error) {
	ctx, span := startSpan(ctx, "ChatRequestService.Respond",
		attribute.String("request.id", requestID), attribute.Bool("request.accept", accept))
	op := "decline"
	if accept {
		op = "accept"
	}
	defer func() {
		endSpan(span, err)
		outcome := "ok"
		if err != nil {
			outcome = strings.ReplaceAll(errorLabel(err), " ", "_")
		}
		observability.IncChatRequest(op, outcome)
	}()

	if err := requireCaller(callerID); err != nil {
		return models.ChatRequest{}, err
	}
	req, err = s.requests.Get(ctx, requestID)
	if err != nil {
		return models.ChatRequest{}, err
	}
	if req.ToUserID != callerID {
		return models.ChatRequest{}, fmt.Errorf("only the recipient may respond: %w", errs.ErrPermission)
	}
	if req.Status != models.RequestPending {
		if accept && req.Status == models.RequestAccepted {
			chat, created, err := s.chats.CreateChat(ctx, req.FromUserID, req.ToUserID)
			switch {
			case err != nil:
				logger.Errorf("heal chat for accepted request %s: %v", req.ID, err)
			case created:
				logger.Infof("healed chat %s for accepted request %s", chat.ID, req.ID)
				s.notifyAccepted(ctx, req, chat, true)
			}
		}
		return models.ChatRequest{}, errs.InvalidState("request is already %s", req.Status)
	}

	status := models.RequestDeclined
	if accept {
		status = models.RequestAccepted
	}
	at := s.now()
	if err := s.requests.Resolve(ctx, req.ID, status, at); err != nil {
		return models.ChatRequest{}, err
	}
	req.Status = status
	req.RespondedAt = &at
	req.UniqueKey = ""
	logger.Infof("chat request %s id=%s", status, req.ID)

	if !accept {
		notify(ctx, s.notifier, models.Notification{
			UserID:    req.FromUserID,
			Type:      models.NotificationRequestDeclined,
			Title:     "Chat request declined",
			Message:   responderName(req) + " declined your chat request",
			RelatedID: req.ID,
		})
		return req, nil
	}

	chat, created, err := s.chats.CreateChat(ctx, req.FromUserID, req.ToUserID)
	if err != nil {
		return req, fmt.Errorf("create chat for request %s: %w", req.ID, err)
	}
	s.notifyAccepted(ctx, req, chat, created)
	return req, nil
}

func responderName(req models.ChatRequest) string {
	if req.ToUser != nil && req.ToUser.DisplayName != "" {
		return req.ToUser.DisplayName
	}
	return "Someone"
}

// notifyAccepted tells the requester about the accept and, when the chat is
// new, tells the recipient it can start chatting.
func (s *ChatRequestService) notifyAccepted(ctx context.Context, req models.ChatRequest, chat models.Chat, created bool) {
	notify(ctx, s.notifier, models.Notification{
		UserID:    req.FromUserID,
		Type:      models.NotificationRequestAccepted,
		Title:     "Chat request accepted",
		Message:   responderName(req) + " accepted your chat request",
		RelatedID: chat.ID,
	})
	if !created {
		return
	}
	requester := "Someone"
	if req.FromUser != nil && req.FromUser.DisplayName != "" {
		requester = req.FromUser.DisplayName
	}
	notify(ctx, s.notifier, models.Notification{
		UserID:    req.ToUserID,
		Type:      models.NotificationNewChat,
		Title:     "New chat",
		Message:   "You can now chat with " + requester,
		RelatedID: chat.ID,
	})
}

// Cancel deletes a pending request sent by callerID.
func (s *ChatRequestService) Cancel(ctx context.Context, callerID, requestID string) error {
	if err := requireCaller(callerID); err != nil {
		return err
	}
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if req.FromUserID != callerID {
		return fmt.Errorf("only the sender may cancel: %w", errs.ErrPermission)
	}
	if req.Status != models.RequestPending {
		return errs.InvalidState("request is already %s", req.Status)
	}
	if err := s.requests.DeletePending(ctx, requestID); err != nil {
		return err
	}
	observability.IncChatRequest("cancel", "ok")
	logger.Infof("chat request cancelled id=%s", requestID)
	return nil
}

// Incoming lists the pending requests addressed to userID, newest first.
func (s *ChatRequestService) Incoming(ctx context.Context, userID string) ([]models.ChatRequest, error) {
	if err := requireCaller(userID); err != nil {
		return nil, err
	}
	reqs, err := s.requests.ListIncoming(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.FillSnapshots(ctx, reqs), nil
}

// Sent lists every request sent by userID, newest first.
func (s *ChatRequestService) Sent(ctx context.Context, userID string) ([]models.ChatRequest, error) {
	if err := requireCaller(userID); err != nil {
		return nil, err
	}
	reqs, err := s.requests.ListSent(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.FillSnapshots(ctx, reqs), nil
}

// FillSnapshots looks up the display data of requests stored without it.
func (s *ChatRequestService) FillSnapshots(ctx context.Context, reqs []models.ChatRequest) []models.ChatRequest {
	for i := range reqs {
		if reqs[i].FromUser == nil {
			if u, err := s.users.Get(ctx, reqs[i].FromUserID); err == nil {
				reqs[i].FromUser = u.Snapshot()
			}
		}
		if reqs[i].ToUser == nil {
			if u, err := s.users.Get(ctx, reqs[i].ToUserID); err == nil {
				reqs[i].ToUser = u.Snapshot()
			}
		}
		reqs[i].UniqueKey = ""
	}
	return reqs
}

func errorLabel(err error) string {
	if kind := errs.Kind(err); kind != nil {
		return kind.Error()
	}
	return "error"
}
