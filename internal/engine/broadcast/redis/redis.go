// Package redis publishes session events over Redis pub/sub.
package redis

import (
	"context"
	"fmt"

	backend "github.com/redis/go-redis/v9"

	"github.com/louisbranch/torchbearer.quest/internal/engine/broadcast"
	"github.com/louisbranch/torchbearer.quest/internal/platform/timeouts"
)

const defaultPrefix = "engine:session:"

// Publisher broadcasts session events on per-session Redis channels.
type Publisher struct {
	client *backend.Client
	prefix string
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithPrefix overrides the channel prefix.
func WithPrefix(prefix string) Option {
	return func(p *Publisher) {
		p.prefix = prefix
	}
}

// New connects a publisher to the Redis server at address.
func New(address, password string, db int, opts ...Option) *Publisher {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient wraps an existing client, usually for tests.
func NewFromClient(client *backend.Client, opts ...Option) *Publisher {
	publisher := &Publisher{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(publisher)
	}
	return publisher
}

// Channel returns the pub/sub channel for a session.
func (p *Publisher) Channel(sessionID string) string {
	return p.prefix + sessionID
}

// Publish sends one event on the session's channel. Publishing is bounded
// by the shared publish timeout so a slow broker cannot stall the caller.
func (p *Publisher) Publish(ctx context.Context, event broadcast.Event) error {
	payload, err := broadcast.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.Publish)
	defer cancel()

	if err := p.client.Publish(ctx, p.Channel(event.SessionID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

var _ broadcast.Broadcaster = (*Publisher)(nil)
