package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatlink-service/internal/logger"
	"chatlink-service/internal/observability"
	"chatlink-service/internal/presence"
	"chatlink-service/internal/repositories"
	"chatlink-service/internal/viewmodel"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 4096
)

// Stream names sent as the "type" of server messages.
const (
	StreamChats         = "chats"
	StreamRequests      = "requests"
	StreamNotifications = "notifications"
	StreamRoom          = "room"
	StreamPins          = "pins"
	StreamPresence      = "presence"
	StreamError         = "error"
	StreamPong          = "pong"
)

// Views builds the view-models of one session.
type Views struct {
	Chats         repositories.ChatRepository
	Messages      repositories.MessageRepository
	Users         repositories.UserRepository
	Requests      repositories.ChatRequestRepository
	Pins          repositories.PinnedRepository
	Notifications repositories.NotificationRepository
	Summarizer    viewmodel.Summarizer
	Filler        viewmodel.SnapshotFiller
	Presence      *presence.Tracker
}

type serverMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type clientMessage struct {
	Type    string `json:"type"`
	ChatID  string `json:"chatId,omitempty"`
	UserID  string `json:"userId,omitempty"`
	Visible *bool  `json:"visible,omitempty"`
	Stream  string `json:"stream,omitempty"`
}

// Session streams the view-model state of one user over one connection.
type Session struct {
	info    ConnInfo
	conn    *websocket.Conn
	writeMu sync.Mutex

	tracker  *presence.Tracker
	online   *presence.Session
	chats    *viewmodel.ChatListView
	requests *viewmodel.RequestsView
	feed     *viewmodel.NotificationFeed
	room     *viewmodel.ChatRoomView
	pins     *viewmodel.PinnedView
	peers    *viewmodel.PresenceView

	scope  viewmodel.Scope
	mu     sync.Mutex
	cancel context.CancelFunc
	once   sync.Once
}

func newSession(conn *websocket.Conn, info ConnInfo, v Views) *Session {
	return &Session{
		info:     info,
		conn:     conn,
		tracker:  v.Presence,
		chats:    viewmodel.NewChatListView(v.Chats, v.Summarizer),
		requests: viewmodel.NewRequestsView(v.Requests, v.Filler),
		feed:     viewmodel.NewNotificationFeed(v.Notifications),
		room:     viewmodel.NewChatRoomView(info.UserID, v.Chats, v.Messages, v.Users),
		pins:     viewmodel.NewPinnedView(info.UserID, v.Pins, v.Chats),
		peers:    viewmodel.NewPresenceView(v.Presence),
	}
}

// Run serves the session until the connection drops or ctx ends. It
// returns the close reason, empty for a clean close.
func (s *Session) Run(ctx context.Context) string {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.Close()
		// Teardowns registered after an early Close.
		s.scope.Dispose()
	}()

	online, err := s.tracker.Start(ctx, s.info.UserID)
	if err != nil {
		logger.Errorf("ws presence start for %s: %v", s.info.UserID, err)
	} else {
		s.online = online
		s.scope.Add(func() {
			if err := online.Stop(context.Background()); err != nil {
				logger.Errorf("ws presence stop for %s: %v", s.info.UserID, err)
			}
		})
	}

	s.scope.Add(s.chats.Close)
	s.scope.Add(s.requests.Close)
	s.scope.Add(s.feed.Close)
	s.scope.Add(s.room.Close)
	s.scope.Add(s.pins.Close)
	s.scope.Add(s.peers.Close)

	stream(ctx, s, StreamChats, s.chats.States)
	stream(ctx, s, StreamRequests, s.requests.States)
	stream(ctx, s, StreamNotifications, s.feed.States)
	stream(ctx, s, StreamRoom, s.room.States)
	stream(ctx, s, StreamPins, s.pins.States)
	stream(ctx, s, StreamPresence, s.peers.States)

	for _, start := range []func(context.Context, string) error{s.chats.SetUser, s.requests.SetUser, s.feed.SetUser} {
		if err := start(ctx, s.info.UserID); err != nil {
			s.sendError(err)
		}
	}

	go s.pinger(ctx)
	return s.readLoop(ctx)
}

// Close ends the session. It is safe to call more than once and from any
// goroutine.
func (s *Session) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.scope.Dispose()
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
}

// stream forwards a view's states to the client until ctx ends.
func stream[S any](ctx context.Context, s *Session, name string, subscribe func() (<-chan S, func())) {
	states, release := subscribe()
	s.scope.Add(release)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case state, ok := <-states:
				if !ok {
					return
				}
				if err := s.send(serverMessage{Type: name, Data: state}); err != nil {
					logger.Debugf("ws %s write failed: %v", s.info.ConnID, err)
					s.Close()
					return
				}
			}
		}
	}()
}

func (s *Session) send(msg serverMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

func (s *Session) sendError(err error) {
	if werr := s.send(serverMessage{Type: StreamError, Data: map[string]string{"message": err.Error()}}); werr != nil {
		logger.Debugf("ws %s error write failed: %v", s.info.ConnID, werr)
	}
}

func (s *Session) pinger(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				s.Close()
				return
			}
		}
	}
}

func (s *Session) readLoop(ctx context.Context) string {
	s.conn.SetReadLimit(maxMessage)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || ctx.Err() != nil {
				return ""
			}
			observability.IncWSEvent("session", "ws_error")
			return err.Error()
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(fmt.Errorf("malformed message: %w", err))
			continue
		}
		observability.IncWSEvent("session", "msg_"+msg.Type)
		if err := s.handle(ctx, msg); err != nil {
			s.sendError(err)
		}
	}
}

func (s *Session) handle(ctx context.Context, msg clientMessage) error {
	switch msg.Type {
	case "open_chat":
		if msg.ChatID == "" {
			return fmt.Errorf("open_chat needs chatId")
		}
		if err := s.room.Open(ctx, msg.ChatID); err != nil {
			return err
		}
		return s.pins.Open(ctx, msg.ChatID)
	case "close_chat":
		s.room.Close()
		s.pins.Close()
		return nil
	case "follow":
		if msg.UserID == "" {
			return fmt.Errorf("follow needs userId")
		}
		return s.peers.Follow(ctx, msg.UserID)
	case "unfollow":
		s.peers.Unfollow(msg.UserID)
		return nil
	case "visibility":
		if msg.Visible == nil {
			return fmt.Errorf("visibility needs visible")
		}
		if s.online == nil {
			return nil
		}
		return s.online.SetVisible(ctx, *msg.Visible)
	case "retry":
		return s.retry(ctx, msg.Stream)
	case "ping":
		return s.send(serverMessage{Type: StreamPong})
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

// retry re-subscribes one stream, or every stream when name is empty.
func (s *Session) retry(ctx context.Context, name string) error {
	retries := map[string]func(context.Context) error{
		StreamChats:         s.chats.Retry,
		StreamRequests:      s.requests.Retry,
		StreamNotifications: s.feed.Retry,
		StreamRoom:          s.room.Retry,
		StreamPins:          s.pins.Retry,
	}
	if name != "" {
		fn, ok := retries[name]
		if !ok {
			return fmt.Errorf("unknown stream %q", name)
		}
		return fn(ctx)
	}
	var firstErr error
	for _, fn := range retries {
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
