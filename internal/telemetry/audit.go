package telemetry

import (
	"context"
	"strings"
	"time"

	"chatlink-service/internal/logger"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Audited actions. Each one is published under <routing key>.<action>.
const (
	ActionSignUp          = "user_signup"
	ActionRequestSent     = "chat_request_sent"
	ActionRequestAccepted = "chat_request_accepted"
	ActionRequestDeclined = "chat_request_declined"
	ActionRequestCanceled = "chat_request_canceled"
	ActionPasswordChanged = "password_changed"
	ActionDebug           = "debug"
)

// Entry is one audited state change.
type Entry struct {
	Action    string
	Level     string
	Subject   string // id of the request, chat or user the action touched
	Text      string
	RequestID string
	UserID    *string
}

// AuditEmitter publishes audit_log events for workflow transitions.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Action  string `json:"action"`
	Level   string `json:"level"`
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  strings.TrimSuffix(routingKey, "."),
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

// Emit never fails the caller; publish errors are only logged.
func (e *AuditEmitter) Emit(ctx context.Context, entry Entry) {
	if e == nil || e.publisher == nil {
		return
	}
	if entry.Level == "" {
		entry.Level = "INFO"
	}

	logger.Debugf("audit emit: action=%s subject=%s request_id=%s", entry.Action, entry.Subject, entry.RequestID)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     entry.RequestID,
		UserID:        entry.UserID,
		Payload: AuditPayload{
			Action:  entry.Action,
			Level:   entry.Level,
			Subject: entry.Subject,
			Text:    entry.Text,
		},
	}

	if err := e.publisher.Publish(ctx, e.RoutingKey(entry.Action), envelope); err != nil {
		logger.Errorf("audit publish %s failed: %v", entry.Action, err)
	}
}

// RoutingKey returns the key an action is published under.
func (e *AuditEmitter) RoutingKey(action string) string {
	if action == "" {
		return e.routingKey
	}
	return e.routingKey + "." + action
}
