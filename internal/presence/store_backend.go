package presence

import (
	"context"
	"time"

	"chatlink-service/internal/docstore"
	"chatlink-service/internal/logger"
	"chatlink-service/internal/models"
	"chatlink-service/internal/repositories"
)

// UserDocStore keeps presence on the users document.
type UserDocStore struct {
	users repositories.UserRepository
}

func NewUserDocStore(users repositories.UserRepository) *UserDocStore {
	return &UserDocStore{users: users}
}

func (s *UserDocStore) SetPresence(ctx context.Context, userID string, online bool, at time.Time) error {
	return s.users.SetPresence(ctx, userID, online, at)
}

func (s *UserDocStore) Get(ctx context.Context, userID string) (models.Presence, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return models.Presence{}, err
	}
	return fromProfile(u), nil
}

func (s *UserDocStore) Follow(ctx context.Context, userID string) (*Feed, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub, err := s.users.Watch(ctx, userID)
	if err != nil {
		cancel()
		return nil, err
	}
	feed := newFeed(func() {
		cancel()
		sub.Close()
	})
	go forward(sub, feed, userID)
	return feed, nil
}

// forward turns user snapshots into presence updates until sub ends.
func forward(sub *docstore.Subscription, feed *Feed, userID string) {
	defer feed.Close()
	for snap := range sub.C() {
		if snap.Err != nil {
			logger.Errorf("presence watch for %s: %v", userID, snap.Err)
			return
		}
		users, err := repositories.DecodeAll[models.UserProfile](snap.Records)
		if err != nil {
			logger.Errorf("presence decode for %s: %v", userID, err)
			continue
		}
		p := models.Presence{UserID: userID}
		if len(users) > 0 {
			p = fromProfile(users[0])
		}
		feed.send(p)
	}
}

func fromProfile(u models.UserProfile) models.Presence {
	return models.Presence{UserID: u.ID, IsOnline: u.IsOnline, LastSeenAt: u.LastSeenAt}
}

var _ Store = (*UserDocStore)(nil)
