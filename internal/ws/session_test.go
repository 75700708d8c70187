package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatlink-service/internal/docstore"
	"chatlink-service/internal/mocks"
	"chatlink-service/internal/models"
	"chatlink-service/internal/presence"
	"chatlink-service/internal/repositories"
	"chatlink-service/internal/services"
	"chatlink-service/internal/viewmodel"
)

type wsFixture struct {
	server *httptest.Server
	hub    *Hub
	users  *repositories.UserRepo
	chats  *services.ChatService
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	ctx := context.Background()
	store := docstore.NewMemory()
	t.Cleanup(func() { _ = store.Close() })

	users := repositories.NewUserRepo(store)
	for _, u := range []models.UserProfile{
		{ID: "u1", Email: "alice@example.com", DisplayName: "Alice"},
		{ID: "u2", Email: "bob@example.com", DisplayName: "Bob"},
	} {
		require.NoError(t, users.Create(ctx, u))
	}

	notifier := &mocks.NotifierMock{}
	notifier.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Maybe()
	chatRepo := repositories.NewChatRepo(store)
	msgRepo := repositories.NewMessageRepo(store)
	reqRepo := repositories.NewChatRequestRepo(store)
	chats := services.NewChatService(chatRepo, msgRepo, users, notifier, services.NoopImageProber{})
	requests := services.NewChatRequestService(reqRepo, users, chats, notifier)

	verifier := new(mocks.AuthMock)
	verifier.On("Verify", "tok-u1").Return("u1", nil).Maybe()
	verifier.On("Verify", mock.Anything).Return("", assert.AnError).Maybe()

	hub := NewHub(nil)
	handler := NewHandler(hub, verifier, Views{
		Chats:         chatRepo,
		Messages:      msgRepo,
		Users:         users,
		Requests:      reqRepo,
		Pins:          repositories.NewPinnedRepo(store),
		Notifications: repositories.NewNotificationRepo(store),
		Summarizer:    chats,
		Filler:        requests,
		Presence:      presence.NewTracker(presence.NewUserDocStore(users), time.Hour),
	}, nil)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", handler.Handle)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &wsFixture{server: server, hub: hub, users: users, chats: chats}
}

func (f *wsFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// readUntil reads messages until one of type typ satisfies match.
func readUntil(t *testing.T, conn *websocket.Conn, typ string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg received
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ && (match == nil || match(msg.Data)) {
			return msg.Data
		}
	}
}

func TestSessionRejectsBadToken(t *testing.T) {
	f := newWSFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestSessionStreamsViews(t *testing.T) {
	ctx := context.Background()
	f := newWSFixture(t)
	conn := f.dial(t, "tok-u1")

	readUntil(t, conn, StreamChats, nil)
	assert.Eventually(t, func() bool { return f.hub.Count("u1") == 1 }, time.Second, 10*time.Millisecond)

	u1, err := f.users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u1.IsOnline)

	chat, _, err := f.chats.CreateChat(ctx, "u1", "u2")
	require.NoError(t, err)
	readUntil(t, conn, StreamChats, func(raw json.RawMessage) bool {
		var s viewmodel.ChatListState
		return json.Unmarshal(raw, &s) == nil && len(s.Chats) == 1
	})

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "open_chat", "chatId": chat.ID}))
	raw := readUntil(t, conn, StreamRoom, func(raw json.RawMessage) bool {
		var s viewmodel.ChatRoomState
		return json.Unmarshal(raw, &s) == nil && s.Chat != nil
	})
	var room viewmodel.ChatRoomState
	require.NoError(t, json.Unmarshal(raw, &room))
	require.NotNil(t, room.Peer)
	assert.Equal(t, "Bob", room.Peer.DisplayName)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "follow", "userId": "u2"}))
	readUntil(t, conn, StreamPresence, func(raw json.RawMessage) bool {
		var s viewmodel.PresenceState
		if json.Unmarshal(raw, &s) != nil {
			return false
		}
		_, ok := s.Peers["u2"]
		return ok
	})

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "bogus"}))
	readUntil(t, conn, StreamError, nil)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	readUntil(t, conn, StreamPong, nil)
}

func TestSessionGoesOfflineOnClose(t *testing.T) {
	ctx := context.Background()
	f := newWSFixture(t)
	conn := f.dial(t, "tok-u1")
	readUntil(t, conn, StreamChats, nil)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = conn.Close()

	assert.Eventually(t, func() bool { return f.hub.Count("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		u, err := f.users.Get(ctx, "u1")
		return err == nil && !u.IsOnline
	}, 2*time.Second, 10*time.Millisecond)
}
