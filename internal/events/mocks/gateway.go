package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/shortkit/redirector/internal/events"
)

// Gateway is a mock implementation of events.Gateway
type Gateway struct {
	mock.Mock
}

// Connect establishes the broker connection
func (m *Gateway) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Publish wraps the payload in an Event envelope and publishes it
func (m *Gateway) Publish(ctx context.Context, eventName string, payload any) error {
	args := m.Called(ctx, eventName, payload)
	return args.Error(0)
}

// Subscribe registers a durable consumer for the event name
func (m *Gateway) Subscribe(eventName string, handler events.Handler) error {
	args := m.Called(eventName, handler)
	return args.Error(0)
}

// Connected reports whether the broker link is healthy
func (m *Gateway) Connected() bool {
	args := m.Called()
	return args.Bool(0)
}

// Close drains and closes the broker connection
func (m *Gateway) Close() error {
	args := m.Called()
	return args.Error(0)
}
