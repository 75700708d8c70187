package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatlink-service/internal/docstore"
	"chatlink-service/internal/mocks"
	"chatlink-service/internal/models"
	"chatlink-service/internal/repositories"
)

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	store         *docstore.Memory
	users         *repositories.UserRepo
	creds         *repositories.CredentialRepo
	requestRepo   *repositories.ChatRequestRepo
	chatRepo      *repositories.ChatRepo
	messageRepo   *repositories.MessageRepo
	pinRepo       *repositories.PinnedRepo
	notifRepo     *repositories.NotificationRepo
	notifier      *mocks.NotifierMock
	prober        *mocks.ImageProberMock
	chats         *ChatService
	requests      *ChatRequestService
	pins          *PinnedService
	notifications *NotificationService
	directory     *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{t: base}
	store := docstore.NewMemory()
	store.SetClock(clock.Now)

	f := &fixture{
		store:       store,
		users:       repositories.NewUserRepo(store),
		creds:       repositories.NewCredentialRepo(store),
		requestRepo: repositories.NewChatRequestRepo(store),
		chatRepo:    repositories.NewChatRepo(store),
		messageRepo: repositories.NewMessageRepo(store),
		pinRepo:     repositories.NewPinnedRepo(store),
		notifRepo:   repositories.NewNotificationRepo(store),
		notifier:    &mocks.NotifierMock{},
		prober:      &mocks.ImageProberMock{},
	}
	f.notifier.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Maybe()

	f.chats = NewChatService(f.chatRepo, f.messageRepo, f.users, f.notifier, f.prober)
	f.chats.SetClock(clock.Now)
	f.requests = NewChatRequestService(f.requestRepo, f.users, f.chats, f.notifier)
	f.requests.SetClock(clock.Now)
	f.pins = NewPinnedService(f.pinRepo, f.chatRepo, f.messageRepo, f.users)
	f.pins.SetClock(clock.Now)
	f.notifications = NewNotificationService(f.notifRepo)
	f.directory = NewUserService(f.users, f.creds)

	ctx := context.Background()
	for _, u := range []models.UserProfile{
		{ID: "u1", Email: "alice@example.com", DisplayName: "Alice"},
		{ID: "u2", Email: "bob@example.com", DisplayName: "Bob"},
		{ID: "u3", Email: "carol@example.com", DisplayName: "Carol"},
	} {
		u.CreatedAt = base
		require.NoError(t, f.users.Create(ctx, u))
	}
	return f
}

// connect runs the request workflow until a and b share a chat.
func (f *fixture) connect(t *testing.T, a, b string) models.Chat {
	t.Helper()
	ctx := context.Background()
	res, err := f.requests.Send(ctx, a, b)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeRequestSent, res.Outcome)
	_, err = f.requests.Respond(ctx, b, res.Request.ID, true)
	require.NoError(t, err)
	chat, err := f.chatRepo.Get(ctx, models.ChatIDFor(a, b))
	require.NoError(t, err)
	return chat
}

func (f *fixture) notificationsOf(userID string, typ models.NotificationType) []models.Notification {
	var out []models.Notification
	for _, n := range f.notifier.Sent() {
		if n.UserID == userID && n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}
