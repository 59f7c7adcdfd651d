package mocks

import (
	"context"
	"errors"

	"github.com/godilite/support-metrics/internal/mailer"
)

// MockSender is a mock implementation of the mailer.Sender interface.
type MockSender struct {
	SendFunc func(ctx context.Context, msg mailer.Message) (string, error)
}

// Send implements the mailer.Sender interface
func (m *MockSender) Send(ctx context.Context, msg mailer.Message) (string, error) {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	return "", errors.New("SendFunc not implemented")
}

// MockContactLister is a mock implementation of the mailer.ContactLister interface.
type MockContactLister struct {
	SubscribersFunc func(ctx context.Context) ([]string, error)
}

// Subscribers implements the mailer.ContactLister interface
func (m *MockContactLister) Subscribers(ctx context.Context) ([]string, error) {
	if m.SubscribersFunc != nil {
		return m.SubscribersFunc(ctx)
	}
	return nil, errors.New("SubscribersFunc not implemented")
}
