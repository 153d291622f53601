package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/shortkit/redirector/internal/domain"
	"github.com/shortkit/redirector/internal/events"
)

// Config holds broker connection settings
type Config struct {
	// URL is the NATS server address
	URL string
	// Stream is the JetStream stream name
	Stream string
	// Source identifies this process in published envelopes
	Source string
	// AckWait is how long the broker waits for an ack before redelivery
	AckWait time.Duration
	// MaxDeliver bounds redelivery attempts per message
	MaxDeliver int
}

// subscription is one registered consumer: the desired spec plus, once the
// broker has accepted it, the live subscription.
type subscription struct {
	eventName string
	handler   events.Handler
	sub       *nats.Subscription
}

// Gateway implements events.Gateway on NATS JetStream. Messages are
// persistent (file storage) and consumed through durable queue consumers with
// manual acks, giving at-least-once delivery. While the connection is down,
// publishes fail fast instead of queuing in memory. Stream bootstrap and
// consumer creation need a reachable broker; when they fail, the registration
// is kept and retried from the client's connected/reconnected callbacks, so a
// consumer registered during an outage attaches once the broker comes back.
type Gateway struct {
	cfg Config

	mu            sync.Mutex
	conn          *nats.Conn
	js            nats.JetStreamContext
	streamReady   bool
	subscriptions []*subscription
}

// New creates an unconnected gateway
func New(cfg Config) *Gateway {
	if cfg.Stream == "" {
		cfg.Stream = "URLS"
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 5
	}
	return &Gateway{cfg: cfg}
}

// Connect establishes the broker connection and stream. Idempotent: calling
// it on a healthy gateway is a no-op.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn != nil && !g.conn.IsClosed() {
		return nil
	}

	conn, err := nats.Connect(
		g.cfg.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.RetryOnFailedConnect(true),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("[ERROR] broker disconnected: %v", err)
		}),
		nats.ConnectHandler(func(c *nats.Conn) {
			log.Printf("Broker connected to %s", c.ConnectedUrl())
			g.recoverSetup()
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Printf("Broker reconnected to %s", c.ConnectedUrl())
			g.recoverSetup()
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	g.conn = conn
	g.js = js
	g.streamReady = false

	// With RetryOnFailedConnect the connection may still be pending here; in
	// that case the connect callback runs the bootstrap instead
	if conn.Status() == nats.CONNECTED {
		if err := g.ensureStream(); err != nil {
			log.Printf("[ERROR] stream bootstrap failed, retrying when the broker is reachable: %v", err)
		}
	}

	return nil
}

// ensureStream creates or updates the stream; call with g.mu held
func (g *Gateway) ensureStream() error {
	cfg := &nats.StreamConfig{
		Name:     g.cfg.Stream,
		Subjects: []string{"urls.>"},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	}

	_, err := g.js.StreamInfo(g.cfg.Stream)
	if err == nats.ErrStreamNotFound {
		if _, err = g.js.AddStream(cfg); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to query stream: %w", err)
	} else if _, err = g.js.UpdateStream(cfg); err != nil {
		return fmt.Errorf("failed to update stream: %w", err)
	}

	g.streamReady = true
	return nil
}

// recoverSetup re-runs the broker-dependent setup after a (re)connect: stream
// bootstrap and any consumers that are not attached yet. Runs on the client's
// callback goroutine.
func (g *Gateway) recoverSetup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.js == nil {
		return
	}

	if !g.streamReady {
		if err := g.ensureStream(); err != nil {
			log.Printf("[ERROR] stream bootstrap retry failed: %v", err)
			return
		}
	}

	for _, s := range g.subscriptions {
		if s.sub != nil && s.sub.IsValid() {
			continue
		}
		if err := g.consume(s); err != nil {
			log.Printf("[ERROR] failed to attach consumer for %s: %v", s.eventName, err)
		}
	}
}

// Publish wraps the payload in an Event envelope and publishes it
// synchronously, waiting for the broker ack.
func (g *Gateway) Publish(ctx context.Context, eventName string, payload any) error {
	g.mu.Lock()
	js := g.js
	conn := g.conn
	if js != nil && conn.Status() == nats.CONNECTED && !g.streamReady {
		if err := g.ensureStream(); err != nil {
			g.mu.Unlock()
			return fmt.Errorf("stream not ready: %w", err)
		}
	}
	g.mu.Unlock()

	if js == nil {
		return fmt.Errorf("gateway not connected")
	}
	if conn.Status() != nats.CONNECTED {
		// Drop rather than queue: unbounded buffering trades memory for
		// analytics counts the system is allowed to lose
		return fmt.Errorf("broker disconnected, dropping %s", eventName)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	envelope, err := json.Marshal(domain.Event{
		Name:      eventName,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
		Source:    g.cfg.Source,
	})
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	if _, err := js.Publish(eventName, envelope, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventName, err)
	}

	return nil
}

// Subscribe registers a durable queue consumer for the event name. The
// handler is invoked once per delivery; an error response triggers a Nak and
// eventual redelivery, so handlers must be idempotent. Consumer creation
// needs a reachable broker; while it is down the registration stays pending
// and the connect callback attaches it.
func (g *Gateway) Subscribe(eventName string, handler events.Handler) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.js == nil {
		return fmt.Errorf("gateway not connected")
	}

	s := &subscription{eventName: eventName, handler: handler}
	g.subscriptions = append(g.subscriptions, s)

	if g.conn.Status() != nats.CONNECTED || !g.streamReady {
		log.Printf("Broker unreachable, deferring consumer for %s", eventName)
		return nil
	}

	return g.consume(s)
}

// consume creates the durable queue subscription; call with g.mu held
func (g *Gateway) consume(s *subscription) error {
	durable := durableName(g.cfg.Source, s.eventName)
	eventName := s.eventName
	handler := s.handler

	sub, err := g.js.QueueSubscribe(
		eventName,
		durable,
		func(msg *nats.Msg) {
			var event domain.Event
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				// Malformed envelopes can never succeed; ack to stop redelivery
				log.Printf("[ERROR] dropping malformed event on %s: %v", eventName, err)
				_ = msg.Ack()
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), g.cfg.AckWait)
			defer cancel()

			if err := handler(ctx, &event); err != nil {
				log.Printf("[ERROR] handler failed for %s: %v", eventName, err)
				_ = msg.Nak()
				return
			}
			_ = msg.Ack()
		},
		nats.Durable(durable),
		nats.ManualAck(),
		nats.AckWait(g.cfg.AckWait),
		nats.MaxDeliver(g.cfg.MaxDeliver),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", eventName, err)
	}

	s.sub = sub
	return nil
}

// Connected reports whether the broker link is currently healthy
func (g *Gateway) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.conn != nil && g.conn.Status() == nats.CONNECTED
}

// Close drains subscriptions and closes the connection
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil {
		return nil
	}

	for _, s := range g.subscriptions {
		if s.sub == nil {
			continue
		}
		if err := s.sub.Drain(); err != nil {
			log.Printf("[ERROR] failed to drain subscription: %v", err)
		}
	}
	g.subscriptions = nil
	g.streamReady = false

	if err := g.conn.Drain(); err != nil {
		g.conn.Close()
		return fmt.Errorf("failed to drain connection: %w", err)
	}

	g.conn = nil
	g.js = nil
	return nil
}

// durableName builds a stable consumer name from the source and subject
func durableName(source, eventName string) string {
	name := source + "-" + eventName
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '.' || c == ' ' || c == '*' || c == '>' {
			c = '-'
		}
		out = append(out, c)
	}
	return string(out)
}

// Ensure Gateway implements the interface
var _ events.Gateway = (*Gateway)(nil)
