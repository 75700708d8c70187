package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"chatlink-service/internal/mocks"
	"chatlink-service/internal/observability"
)

func TestHubAddAndRemoveSession(t *testing.T) {
	events := new(mocks.PublisherMock)
	events.On("Publish", mock.Anything, wsRoutingKey, mock.MatchedBy(func(e observability.EventEnvelope) bool {
		return e.EventName == "ws_connect"
	})).Return(nil).Once()
	events.On("Publish", mock.Anything, wsRoutingKey, mock.MatchedBy(func(e observability.EventEnvelope) bool {
		return e.EventName == "ws_disconnect"
	})).Return(nil).Once()
	hub := NewHub(events)

	s := &Session{}
	hub.Add(s, ConnInfo{ConnID: "c1", UserID: "u1"})
	assert.Equal(t, 1, hub.Count("u1"))

	hub.Remove(s, "")
	assert.Zero(t, hub.Count("u1"))
	assert.Empty(t, hub.sessions)

	// Removing twice publishes nothing more.
	hub.Remove(s, "")
	events.AssertExpectations(t)
	assert.Equal(t, []string{wsRoutingKey, wsRoutingKey}, events.RoutingKeys())
}

func TestHubWithoutPublisher(t *testing.T) {
	hub := NewHub(nil)
	a, b := &Session{}, &Session{}
	hub.Add(a, ConnInfo{UserID: "u1"})
	hub.Add(b, ConnInfo{UserID: "u1"})
	assert.Equal(t, 2, hub.Count("u1"))

	hub.Remove(a, "read timeout")
	assert.Equal(t, 1, hub.Count("u1"))
}
