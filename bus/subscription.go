package bus

import (
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/bowber/mottomesh/errors"
)

// Subscription delivers bus messages matching a subject pattern. NATS
// wildcard syntax ("*" for one token, ">" for the remainder) is the same
// syntax the gateway's subject matcher understands, so patterns pass
// straight through to the underlying bus subscription unmodified.
type Subscription struct {
	sub *nats.Subscription
	ch  chan Message

	mu     sync.Mutex
	closed bool
}

// Messages returns the channel of delivered messages. It is closed once
// Unsubscribe completes.
func (s *Subscription) Messages() <-chan Message {
	return s.ch
}

// Unsubscribe cancels delivery. Safe to call more than once.
func (s *Subscription) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.ch)

	if err := s.sub.Unsubscribe(); err != nil {
		return errors.Wrap(err, "bus", "Unsubscribe", "unsubscribe from bus")
	}
	return nil
}

// Subscribe registers interest in pattern, delivering matching messages on
// the returned Subscription's channel until Unsubscribe is called.
func (c *Client) Subscribe(pattern string) (*Subscription, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "bus", "Subscribe", "not connected")
	}

	result := &Subscription{
		ch: make(chan Message, 64),
	}

	sub, err := conn.Subscribe(pattern, func(msg *nats.Msg) {
		result.mu.Lock()
		defer result.mu.Unlock()
		if result.closed {
			return
		}
		select {
		case result.ch <- Message{Subject: msg.Subject, Payload: msg.Data}:
		default:
			// Slow consumer: drop rather than block the bus dispatch goroutine.
		}
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "bus", "Subscribe", "subscribe to pattern")
	}

	result.sub = sub
	return result, nil
}
