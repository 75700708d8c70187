package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"chatlink-service/internal/mocks"
)

func TestAuditEmitterPublishesEnvelope(t *testing.T) {
	pub := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(pub, "audit.chat.", "chatlink-service", "test")
	emitter.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	user := "u1"
	pub.On("Publish", mock.Anything, "audit.chat.chat_request_sent", mock.MatchedBy(func(env AuditEnvelope) bool {
		return env.EventType == "audit_log" &&
			env.RequestID == "req-1" &&
			env.UserID != nil && *env.UserID == "u1" &&
			env.Payload.Action == ActionRequestSent &&
			env.Payload.Level == "INFO" &&
			env.Payload.Subject == "u2" &&
			env.OccurredAt == "2024-01-02T03:04:05Z"
	})).Return(nil).Once()

	emitter.Emit(context.Background(), Entry{
		Action:    ActionRequestSent,
		Subject:   "u2",
		RequestID: "req-1",
		UserID:    &user,
	})
	pub.AssertExpectations(t)
}

func TestAuditEmitterSwallowsPublishErrors(t *testing.T) {
	pub := new(mocks.PublisherMock)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("down")).Once()

	emitter := NewAuditEmitter(pub, "audit.chat", "chatlink-service", "test")
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), Entry{Action: ActionDebug, Level: "ERROR", RequestID: "req-2"})
	})
	pub.AssertExpectations(t)

	var nilEmitter *AuditEmitter
	assert.NotPanics(t, func() {
		nilEmitter.Emit(context.Background(), Entry{Action: ActionDebug})
	})
}

func TestRoutingKey(t *testing.T) {
	emitter := NewAuditEmitter(nil, "audit.chat", "svc", "test")
	assert.Equal(t, "audit.chat.user_signup", emitter.RoutingKey(ActionSignUp))
	assert.Equal(t, "audit.chat", emitter.RoutingKey(""))
}
