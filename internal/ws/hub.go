package ws

import (
	"context"
	"sync"
	"time"

	"chatlink-service/internal/logger"
	"chatlink-service/internal/observability"
)

const wsRoutingKey = "ws_events.sessions"

// EventPublisher sends connection lifecycle events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// ConnInfo identifies one connection in lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) identity() map[string]any {
	return map[string]any{
		"user_id":   i.UserID,
		"device_id": i.DeviceID,
		"ip":        i.IP,
		"trace_id":  i.TraceID,
	}
}

// Hub tracks the live sessions of every user.
type Hub struct {
	sessions map[string]map[*Session]ConnInfo
	events   EventPublisher
	mu       sync.RWMutex
}

// NewHub creates an empty hub. events may be nil.
func NewHub(events EventPublisher) *Hub {
	return &Hub{
		sessions: make(map[string]map[*Session]ConnInfo),
		events:   events,
	}
}

// Add registers a session under its user.
func (h *Hub) Add(s *Session, info ConnInfo) {
	h.mu.Lock()
	if _, ok := h.sessions[info.UserID]; !ok {
		h.sessions[info.UserID] = make(map[*Session]ConnInfo)
	}
	h.sessions[info.UserID][s] = info
	h.mu.Unlock()

	observability.IncWSActive("session")
	observability.IncWSEvent("session", "ws_connect")
	h.publish("ws_connect", info, "")
}

// Remove unregisters a session; reason is empty for a clean close.
func (h *Hub) Remove(s *Session, reason string) {
	h.mu.Lock()
	var info ConnInfo
	var found bool
	for userID, conns := range h.sessions {
		if i, ok := conns[s]; ok {
			info, found = i, true
			delete(conns, s)
			if len(conns) == 0 {
				delete(h.sessions, userID)
			}
			break
		}
	}
	h.mu.Unlock()
	if !found {
		return
	}

	observability.DecWSActive("session")
	observability.IncWSEvent("session", "ws_disconnect")
	h.publish("ws_disconnect", info, reason)
}

// Count returns the number of live sessions of userID.
func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

// CloseUser ends every session of userID, e.g. after logout.
func (h *Hub) CloseUser(userID string) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions[userID]))
	for s := range h.sessions[userID] {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()
	for _, s := range sessions {
		s.Close()
	}
}

// CloseAll ends every session, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	var sessions []*Session
	for _, conns := range h.sessions {
		for s := range conns {
			sessions = append(sessions, s)
		}
	}
	h.mu.RUnlock()
	for _, s := range sessions {
		s.Close()
	}
}

func (h *Hub) publish(event string, info ConnInfo, reason string) {
	if h.events == nil {
		return
	}
	envelope := observability.EventEnvelope{
		EventType:  "ws_events",
		EventName:  event,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		Payload: map[string]any{
			"ws": map[string]any{
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": info.identity(),
		},
	}
	ctx, cancel := context.WithTimeout(observability.WithRequestID(context.Background(), info.RequestID), 5*time.Second)
	defer cancel()
	if err := h.events.Publish(ctx, wsRoutingKey, envelope); err != nil {
		logger.Errorf("ws event %s publish failed: %v", event, err)
	}
}
