package repositories

import (
	"errors"
	"fmt"

	"chatlink-service/internal/docstore"
	"chatlink-service/internal/errs"
)

// Collection names.
const (
	UsersCollection         = "users"
	CredentialsCollection   = "credentials"
	ChatRequestsCollection  = "chatRequests"
	ChatsCollection         = "chats"
	PinnedCollection        = "pinnedMessages"
	NotificationsCollection = "notifications"
	OutboxCollection        = "notificationOutbox"
)

// MessagesCollection is the sub-collection holding the messages of chatID.
func MessagesCollection(chatID string) string {
	return ChatsCollection + "/" + chatID + "/messages"
}

// ErrStateChanged is returned when a conditional write finds the document was
// changed by someone else.
var ErrStateChanged = fmt.Errorf("document changed concurrently: %w", errs.ErrInvalidState)

// DecodeAll decodes every record of a query or snapshot into T.
func DecodeAll[T any](recs []docstore.Record) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := rec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", rec.Collection, rec.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeOne[T any](rec docstore.Record) (T, error) {
	var v T
	if err := rec.Decode(&v); err != nil {
		return v, fmt.Errorf("decode %s/%s: %w", rec.Collection, rec.ID, err)
	}
	return v, nil
}

// translate maps docstore errors onto the service error kinds. Conflicts keep
// docstore.ErrConflict in the chain so callers can still tell them apart.
func translate(op string, err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return notFound
	case errors.Is(err, docstore.ErrPrecondition):
		return fmt.Errorf("%s: %w", op, ErrStateChanged)
	case errors.Is(err, docstore.ErrConflict):
		return fmt.Errorf("%s: %w: %w", op, errs.ErrInvalidState, err)
	default:
		return errs.Store(op, err)
	}
}
