// Package bus wraps the NATS client used to bridge gateway sessions to the
// backend message bus: subscribe/unsubscribe, publish, and request-reply,
// plus a circuit breaker so a flapping broker degrades the gateway's error
// responses instead of hanging every session on it.
package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/bowber/mottomesh/errors"
	"github.com/bowber/mottomesh/metric"
	"github.com/bowber/mottomesh/pkg/retry"
)

// ConnectionStatus describes the bus connection's current state.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Message is one bus-delivered payload for a subscription, carrying the
// concrete subject it arrived on so the session can populate its
// Message.subject field.
type Message struct {
	Subject string
	Payload []byte
}

// Client manages the connection to the backend bus with a circuit breaker:
// repeated connection failures open the circuit and further Connect calls
// fail fast until a backoff period elapses.
type Client struct {
	url    string
	logger Logger

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream

	status atomic.Value // ConnectionStatus

	failures        atomic.Int32
	circuitFailures atomic.Int32
	backoff         atomic.Value // time.Duration
	lastFailure     atomic.Value // time.Time

	circuitThreshold int32
	maxBackoff       time.Duration
	maxReconnects    int
	reconnectWait    time.Duration

	metrics *metric.Metrics

	closed atomic.Bool
}

// NewClient builds a Client for url. Connect must be called before the
// client is usable.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:              url,
		logger:           &defaultLogger{},
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "bus", "NewClient", "apply option")
		}
	}

	c.status.Store(StatusDisconnected)
	c.backoff.Store(time.Second)
	c.lastFailure.Store(time.Time{})

	return c, nil
}

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	v := c.status.Load()
	if v == nil {
		return StatusDisconnected
	}
	return v.(ConnectionStatus)
}

func (c *Client) setStatus(s ConnectionStatus) {
	c.status.Store(s)
	if c.metrics != nil {
		c.metrics.RecordBusStatus(s == StatusConnected)
		c.metrics.RecordCircuitBreakerState(int(s))
	}
}

// RTT returns the round-trip time to the bus, or an error if disconnected.
func (c *Client) RTT() (time.Duration, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return 0, errors.WrapTransient(errors.ErrNoConnection, "bus", "RTT", "not connected")
	}
	rtt, err := conn.RTT()
	if err == nil && c.metrics != nil {
		c.metrics.RecordBusRTT(rtt)
	}
	return rtt, err
}

// Connect establishes the bus connection, failing fast if the circuit
// breaker is currently open. Each dial attempt is retried with exponential
// backoff (errors.DefaultRetryConfig, executed by pkg/retry) for up to four
// attempts, stopping early if ctx is done, so a broker that is merely slow
// to come up doesn't fail the first Connect call outright.
func (c *Client) Connect(ctx context.Context) error {
	if c.Status() == StatusCircuitOpen {
		return errors.WrapTransient(errors.ErrCircuitOpen, "bus", "Connect", "circuit breaker open")
	}

	c.setStatus(StatusConnecting)
	c.logger.Printf("connecting to bus at %s", c.url)

	retryCfg := errors.DefaultRetryConfig().ToRetryConfig()
	err := retry.Do(ctx, retryCfg, func() error { return c.dial(ctx) })
	if err != nil {
		if c.Status() == StatusCircuitOpen {
			return errors.WrapTransient(errors.ErrCircuitOpen, "bus", "Connect", "circuit breaker open")
		}
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(err, "bus", "Connect", "establish connection")
	}

	c.setStatus(StatusConnected)
	c.resetCircuit()
	c.logger.Printf("connected to bus at %s", c.url)
	return nil
}

// dial makes one NATS connection attempt, recording a circuit-breaker
// failure if it doesn't succeed before ctx is done.
func (c *Client) dial(ctx context.Context) error {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
	}

	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		if err != nil {
			connectDone <- err
			return
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		if js, err := jetstream.New(conn); err == nil {
			c.mu.Lock()
			c.js = js
			c.mu.Unlock()
		}

		connectDone <- nil
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			c.recordFailure()
			return err
		}
		return nil
	case <-ctx.Done():
		c.recordFailure()
		return ctx.Err()
	}
}

// Close drains and closes the bus connection. Safe to call multiple times.
func (c *Client) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	drainDone := make(chan error, 1)
	go func() { drainDone <- c.conn.Drain() }()

	select {
	case err := <-drainDone:
		c.conn.Close()
		c.conn = nil
		if err != nil {
			return errors.Wrap(err, "bus", "Close", "drain connection")
		}
		return nil
	case <-ctx.Done():
		c.conn.Close()
		c.conn = nil
		return errors.Wrap(ctx.Err(), "bus", "Close", "context cancelled during drain")
	}
}

// Publish fires payload at subject, best-effort.
func (c *Client) Publish(_ context.Context, subject string, payload []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(errors.ErrNoConnection, "bus", "Publish", "not connected")
	}
	if err := conn.Publish(subject, payload); err != nil {
		c.recordFailure()
		return errors.WrapTransient(err, "bus", "Publish", "publish message")
	}
	return nil
}

// Request performs a correlated request-reply call, returning the reply
// payload, a timeout error, or a broker error.
func (c *Client) Request(ctx context.Context, subject string, payload []byte, timeout time.Duration) ([]byte, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "bus", "Request", "not connected")
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := conn.RequestWithContext(reqCtx, subject, payload)
	if err != nil {
		if reqCtx.Err() != nil {
			return nil, errors.WrapInvalid(errors.ErrRequestTimeout, "bus", "Request", "request timed out")
		}
		c.recordFailure()
		return nil, errors.WrapTransient(err, "bus", "Request", "request failed")
	}

	c.resetCircuit()
	return msg.Data, nil
}

func (c *Client) recordFailure() {
	c.failures.Add(1)
	c.lastFailure.Store(time.Now())

	circuitFailures := c.circuitFailures.Add(1)
	if circuitFailures < c.circuitThreshold {
		return
	}

	current := c.Status()
	if current == StatusCircuitOpen {
		return
	}
	if !c.status.CompareAndSwap(current, StatusCircuitOpen) {
		return
	}

	backoff := c.backoff.Load().(time.Duration) * 2
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	c.backoff.Store(backoff)
	c.circuitFailures.Store(0)

	c.logger.Printf("circuit breaker opened after %d failures, backing off %v", circuitFailures, backoff)
	time.AfterFunc(backoff, c.testCircuit)
}

func (c *Client) resetCircuit() {
	c.failures.Store(0)
	c.circuitFailures.Store(0)
	c.backoff.Store(time.Second)
	if c.Status() == StatusCircuitOpen {
		c.setStatus(StatusDisconnected)
	}
}

func (c *Client) testCircuit() {
	if c.Status() == StatusCircuitOpen {
		c.setStatus(StatusDisconnected)
	}
}

func (c *Client) handleDisconnect(_ *nats.Conn, _ error) {
	c.setStatus(StatusReconnecting)
}

func (c *Client) handleReconnect(_ *nats.Conn) {
	c.setStatus(StatusConnected)
	c.resetCircuit()
	if c.metrics != nil {
		c.metrics.RecordBusReconnect()
	}
}

func (c *Client) handleClosed(_ *nats.Conn) {
	c.setStatus(StatusDisconnected)
}
