package bus

import (
	"log"
	"time"

	"github.com/bowber/mottomesh/metric"
)

// Logger is the minimal logging surface the bus client needs. Callers can
// plug in any logger that satisfies it.
type Logger interface {
	Printf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, args ...interface{}) {
	log.Printf("[bus] "+format, args...)
}

func (l *defaultLogger) Errorf(format string, args ...interface{}) {
	log.Printf("[bus] ERROR: "+format, args...)
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client) error

// WithLogger overrides the default stdlib-backed logger.
func WithLogger(logger Logger) ClientOption {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithMaxReconnects sets the maximum number of reconnect attempts NATS will
// make before giving up. -1 means unlimited.
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = n
		return nil
	}
}

// WithReconnectWait sets the delay between reconnect attempts.
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.reconnectWait = d
		return nil
	}
}

// WithCircuitBreakerThreshold sets the number of consecutive failures that
// opens the circuit.
func WithCircuitBreakerThreshold(n int32) ClientOption {
	return func(c *Client) error {
		c.circuitThreshold = n
		return nil
	}
}

// WithMaxBackoff caps the circuit breaker's exponential backoff.
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.maxBackoff = d
		return nil
	}
}

// WithMetrics wires connection status, RTT, reconnect, and circuit breaker
// state into registry's core metrics.
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		c.metrics = registry.CoreMetrics()
		return nil
	}
}
