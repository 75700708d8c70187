package repositories

import (
	"context"
	"fmt"
	"time"

	"chatlink-service/internal/docstore"
	"chatlink-service/internal/errs"
	"chatlink-service/internal/models"
)

var ErrRequestNotFound = fmt.Errorf("chat request %w", errs.ErrNotFound)

// ChatRequestRepository abstracts chat request persistence.
type ChatRequestRepository interface {
	// Create fails with docstore.ErrConflict in the chain when the pair already
	// has a pending request.
	Create(ctx context.Context, req models.ChatRequest) error
	Get(ctx context.Context, requestID string) (models.ChatRequest, error)
	Between(ctx context.Context, fromUserID, toUserID string) ([]models.ChatRequest, error)
	FindPending(ctx context.Context, userA, userB string) (models.ChatRequest, error)
	Resolve(ctx context.Context, requestID string, status models.RequestStatus, at time.Time) error
	DeletePending(ctx context.Context, requestID string) error
	ListIncoming(ctx context.Context, userID string) ([]models.ChatRequest, error)
	ListSent(ctx context.Context, userID string) ([]models.ChatRequest, error)
	WatchIncoming(ctx context.Context, userID string) (*docstore.Subscription, error)
	WatchSent(ctx context.Context, userID string) (*docstore.Subscription, error)
}

type ChatRequestRepo struct {
	store docstore.Store
}

func NewChatRequestRepo(store docstore.Store) *ChatRequestRepo {
	return &ChatRequestRepo{store: store}
}

func (r *ChatRequestRepo) Create(ctx context.Context, req models.ChatRequest) error {
	if req.Status == models.RequestPending {
		req.UniqueKey = models.PendingKey(req.FromUserID, req.ToUserID)
	}
	return translate("create chat request", r.store.Create(ctx, ChatRequestsCollection, req.ID, req), ErrRequestNotFound)
}

func (r *ChatRequestRepo) Get(ctx context.Context, requestID string) (models.ChatRequest, error) {
	rec, err := r.store.Get(ctx, ChatRequestsCollection, requestID)
	if err != nil {
		return models.ChatRequest{}, translate("get chat request", err, ErrRequestNotFound)
	}
	return decodeOne[models.ChatRequest](rec)
}

// Between lists the requests sent from one user to another, newest first.
func (r *ChatRequestRepo) Between(ctx context.Context, fromUserID, toUserID string) ([]models.ChatRequest, error) {
	recs, err := r.store.Query(ctx, docstore.Query{
		Collection: ChatRequestsCollection,
		Filters: []docstore.Filter{
			docstore.Where("fromUserId", docstore.OpEq, fromUserID),
			docstore.Where("toUserId", docstore.OpEq, toUserID),
		},
		OrderBy:    "createdAt",
		Descending: true,
	})
	if err != nil {
		return nil, translate("query chat requests", err, ErrRequestNotFound)
	}
	return DecodeAll[models.ChatRequest](recs)
}

// FindPending returns the request holding the pair's pending key.
func (r *ChatRequestRepo) FindPending(ctx context.Context, userA, userB string) (models.ChatRequest, error) {
	recs, err := r.store.Query(ctx, docstore.Query{
		Collection: ChatRequestsCollection,
		Filters:    []docstore.Filter{docstore.Where(docstore.UniqueKeyField, docstore.OpEq, models.PendingKey(userA, userB))},
		Limit:      1,
	})
	if err != nil {
		return models.ChatRequest{}, translate("find pending request", err, ErrRequestNotFound)
	}
	if len(recs) == 0 {
		return models.ChatRequest{}, ErrRequestNotFound
	}
	return decodeOne[models.ChatRequest](recs[0])
}

// Resolve moves a pending request to status and releases the pair's pending
// key. It fails with ErrStateChanged if the request is no longer pending.
func (r *ChatRequestRepo) Resolve(ctx context.Context, requestID string, status models.RequestStatus, at time.Time) error {
	err := r.store.Update(ctx, ChatRequestsCollection, requestID, map[string]any{
		"status":                status,
		"respondedAt":           at,
		docstore.UniqueKeyField: nil,
	}, docstore.Where("status", docstore.OpEq, models.RequestPending))
	return translate("resolve chat request", err, ErrRequestNotFound)
}

// DeletePending removes a request only while it is still pending.
func (r *ChatRequestRepo) DeletePending(ctx context.Context, requestID string) error {
	err := r.store.Delete(ctx, ChatRequestsCollection, requestID,
		docstore.Where("status", docstore.OpEq, models.RequestPending))
	return translate("delete chat request", err, ErrRequestNotFound)
}

// IncomingQuery selects the pending requests addressed to userID.
func IncomingQuery(userID string) docstore.Query {
	return docstore.Query{
		Collection: ChatRequestsCollection,
		Filters: []docstore.Filter{
			docstore.Where("toUserId", docstore.OpEq, userID),
			docstore.Where("status", docstore.OpEq, models.RequestPending),
		},
		OrderBy:    "createdAt",
		Descending: true,
	}
}

// SentQuery selects every request sent by userID.
func SentQuery(userID string) docstore.Query {
	return docstore.Query{
		Collection: ChatRequestsCollection,
		Filters:    []docstore.Filter{docstore.Where("fromUserId", docstore.OpEq, userID)},
		OrderBy:    "createdAt",
		Descending: true,
	}
}

func (r *ChatRequestRepo) ListIncoming(ctx context.Context, userID string) ([]models.ChatRequest, error) {
	return r.list(ctx, IncomingQuery(userID))
}

func (r *ChatRequestRepo) ListSent(ctx context.Context, userID string) ([]models.ChatRequest, error) {
	return r.list(ctx, SentQuery(userID))
}

func (r *ChatRequestRepo) list(ctx context.Context, q docstore.Query) ([]models.ChatRequest, error) {
	recs, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, translate("list chat requests", err, ErrRequestNotFound)
	}
	return DecodeAll[models.ChatRequest](recs)
}

func (r *ChatRequestRepo) WatchIncoming(ctx context.Context, userID string) (*docstore.Subscription, error) {
	sub, err := r.store.Watch(ctx, IncomingQuery(userID))
	return sub, translate("watch incoming requests", err, ErrRequestNotFound)
}

func (r *ChatRequestRepo) WatchSent(ctx context.Context, userID string) (*docstore.Subscription, error) {
	sub, err := r.store.Watch(ctx, SentQuery(userID))
	return sub, translate("watch sent requests", err, ErrRequestNotFound)
}
