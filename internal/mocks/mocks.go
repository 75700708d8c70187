package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chatlink-service/internal/models"
)

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Enqueue(ctx context.Context, n models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// Sent returns the notifications passed to Enqueue, in call order.
func (m *NotifierMock) Sent() []models.Notification {
	var out []models.Notification
	for _, call := range m.Calls {
		if call.Method == "Enqueue" {
			out = append(out, call.Arguments.Get(1).(models.Notification))
		}
	}
	return out
}

type ImageProberMock struct {
	mock.Mock
}

func (m *ImageProberMock) Probe(ctx context.Context, rawURL string) error {
	args := m.Called(ctx, rawURL)
	return args.Error(0)
}
