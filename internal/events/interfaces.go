package events

import (
	"context"

	"github.com/shortkit/redirector/internal/domain"
)

// Handler processes one delivered event. Delivery is at-least-once, so
// handlers must be idempotent; returning an error triggers redelivery.
type Handler func(ctx context.Context, event *domain.Event) error

// Gateway defines the interface to the durable publish/subscribe fabric
type Gateway interface {
	// Connect establishes the broker connection and stream. Idempotent:
	// calling it on a healthy gateway is a no-op.
	Connect(ctx context.Context) error

	// Publish wraps the payload in an Event envelope and routes it by the
	// event name. At-least-once; returns an error on failure so the caller
	// can decide to log and drop.
	Publish(ctx context.Context, eventName string, payload any) error

	// Subscribe registers a durable consumer for the event name. While the
	// broker is unreachable the registration stays pending and attaches once
	// connectivity returns.
	Subscribe(eventName string, handler Handler) error

	// Connected reports whether the broker link is currently healthy
	Connected() bool

	// Close drains and closes the broker connection
	Close() error
}
