package session

import (
	"context"
	"time"

	"github.com/bowber/mottomesh/bus"
)

// Subscriber is the subset of bus.Subscription a session depends on. Keeping
// it as an interface lets tests drive a session with an in-process fake bus.
type Subscriber interface {
	Messages() <-chan bus.Message
	Unsubscribe() error
}

// BusClient is the subset of bus.Client operations a session uses.
type BusClient interface {
	Subscribe(pattern string) (Subscriber, error)
	Publish(ctx context.Context, subject string, payload []byte) error
	Request(ctx context.Context, subject string, payload []byte, timeout time.Duration) ([]byte, error)
}

type busAdapter struct {
	client *bus.Client
}

// NewBusAdapter adapts a concrete *bus.Client to the BusClient interface a
// session depends on.
func NewBusAdapter(client *bus.Client) BusClient {
	return &busAdapter{client: client}
}

func (a *busAdapter) Subscribe(pattern string) (Subscriber, error) {
	return a.client.Subscribe(pattern)
}

func (a *busAdapter) Publish(ctx context.Context, subject string, payload []byte) error {
	return a.client.Publish(ctx, subject, payload)
}

func (a *busAdapter) Request(ctx context.Context, subject string, payload []byte, timeout time.Duration) ([]byte, error) {
	return a.client.Request(ctx, subject, payload, timeout)
}
