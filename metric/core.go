package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all gateway-level metrics (not session-local counters).
type Metrics struct {
	// Session lifecycle
	SessionsActive   prometheus.Gauge
	SessionsOpened   prometheus.Counter
	SessionsClosed   *prometheus.CounterVec
	AuthFailures     *prometheus.CounterVec
	AuthDuration     prometheus.Histogram

	// Frames and protocol
	FramesReceived  *prometheus.CounterVec
	FramesSent      *prometheus.CounterVec
	DecodeErrors    *prometheus.CounterVec
	FrameSizeBytes  prometheus.Histogram

	// Permissions
	PermissionDenials *prometheus.CounterVec

	// Subscriptions and requests
	SubscriptionsActive prometheus.Gauge
	RequestsInFlight    prometheus.Gauge
	RequestDuration     prometheus.Histogram
	RequestTimeouts     prometheus.Counter

	// Backpressure
	BackpressureDrops   *prometheus.CounterVec
	OutboundQueueDepth  prometheus.Histogram

	// Bus connectivity
	BusConnected      prometheus.Gauge
	BusRTT            prometheus.Gauge
	BusReconnects     prometheus.Counter
	BusCircuitBreaker prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all gateway metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mottomesh",
				Subsystem: "session",
				Name:      "active",
				Help:      "Number of sessions currently open",
			},
		),

		SessionsOpened: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "mottomesh",
				Subsystem: "session",
				Name:      "opened_total",
				Help:      "Total number of sessions opened",
			},
		),

		SessionsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mottomesh",
				Subsystem: "session",
				Name:      "closed_total",
				Help:      "Total number of sessions closed, by reason",
			},
			[]string{"reason"},
		),

		AuthFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mottomesh",
				Subsystem: "auth",
				Name:      "failures_total",
				Help:      "Total number of authentication failures, by reason",
			},
			[]string{"reason"},
		),

		AuthDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "mottomesh",
				Subsystem: "auth",
				Name:      "duration_seconds",
				Help:      "Time from connection open to authentication accepted",
				Buckets:   prometheus.DefBuckets,
			},
		),

		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mottomesh",
				Subsystem: "protocol",
				Name:      "frames_received_total",
				Help:      "Total number of client frames received, by message type",
			},
			[]string{"type"},
		),

		FramesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mottomesh",
				Subsystem: "protocol",
				Name:      "frames_sent_total",
				Help:      "Total number of server frames sent, by message type",
			},
			[]string{"type"},
		),

		DecodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mottomesh",
				Subsystem: "protocol",
				Name:      "decode_errors_total",
				Help:      "Total number of frame decode errors, by kind",
			},
			[]string{"kind"},
		),

		FrameSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "mottomesh",
				Subsystem: "protocol",
				Name:      "frame_size_bytes",
				Help:      "Size of decoded frames in bytes",
				Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
			},
		),

		PermissionDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mottomesh",
				Subsystem: "permission",
				Name:      "denials_total",
				Help:      "Total number of permission denials, by capability",
			},
			[]string{"capability"},
		),

		SubscriptionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mottomesh",
				Subsystem: "subscription",
				Name:      "active",
				Help:      "Number of active subscriptions across all sessions",
			},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mottomesh",
				Subsystem: "request",
				Name:      "in_flight",
				Help:      "Number of request-reply calls awaiting a response",
			},
		),

		RequestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "mottomesh",
				Subsystem: "request",
				Name:      "duration_seconds",
				Help:      "Time from request sent to reply or timeout",
				Buckets:   prometheus.DefBuckets,
			},
		),

		RequestTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "mottomesh",
				Subsystem: "request",
				Name:      "timeouts_total",
				Help:      "Total number of request-reply calls that timed out",
			},
		),

		BackpressureDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mottomesh",
				Subsystem: "backpressure",
				Name:      "drops_total",
				Help:      "Total number of sessions terminated due to outbound queue overflow",
			},
			[]string{"direction"},
		),

		OutboundQueueDepth: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "mottomesh",
				Subsystem: "backpressure",
				Name:      "outbound_queue_depth",
				Help:      "Observed depth of per-session outbound queues at enqueue time",
				Buckets:   prometheus.LinearBuckets(0, 16, 10),
			},
		),

		BusConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mottomesh",
				Subsystem: "bus",
				Name:      "connected",
				Help:      "Bus connection status (0=disconnected, 1=connected)",
			},
		),

		BusRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mottomesh",
				Subsystem: "bus",
				Name:      "rtt_milliseconds",
				Help:      "Bus round-trip time in milliseconds",
			},
		),

		BusReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "mottomesh",
				Subsystem: "bus",
				Name:      "reconnects_total",
				Help:      "Total number of bus reconnections",
			},
		),

		BusCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mottomesh",
				Subsystem: "bus",
				Name:      "circuit_breaker",
				Help:      "Bus connection status (0=disconnected, 1=connecting, 2=connected, 3=reconnecting, 4=circuit_open)",
			},
		),
	}
}

// RecordSessionOpened increments the opened counter and active gauge.
func (m *Metrics) RecordSessionOpened() {
	m.SessionsOpened.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionClosed decrements the active gauge and records the close reason.
func (m *Metrics) RecordSessionClosed(reason string) {
	m.SessionsActive.Dec()
	m.SessionsClosed.WithLabelValues(reason).Inc()
}

// RecordAuthFailure increments the auth failure counter for the given reason.
func (m *Metrics) RecordAuthFailure(reason string) {
	m.AuthFailures.WithLabelValues(reason).Inc()
}

// RecordAuthDuration records the time taken to authenticate a session.
func (m *Metrics) RecordAuthDuration(d time.Duration) {
	m.AuthDuration.Observe(d.Seconds())
}

// RecordFrameReceived increments the received-frame counter for a message type.
func (m *Metrics) RecordFrameReceived(msgType string, size int) {
	m.FramesReceived.WithLabelValues(msgType).Inc()
	m.FrameSizeBytes.Observe(float64(size))
}

// RecordFrameSent increments the sent-frame counter for a message type.
func (m *Metrics) RecordFrameSent(msgType string) {
	m.FramesSent.WithLabelValues(msgType).Inc()
}

// RecordDecodeError increments the decode error counter for a failure kind.
func (m *Metrics) RecordDecodeError(kind string) {
	m.DecodeErrors.WithLabelValues(kind).Inc()
}

// RecordPermissionDenial increments the permission denial counter for a capability.
func (m *Metrics) RecordPermissionDenial(capability string) {
	m.PermissionDenials.WithLabelValues(capability).Inc()
}

// RecordSubscribe increments the active subscription gauge.
func (m *Metrics) RecordSubscribe() {
	m.SubscriptionsActive.Inc()
}

// RecordUnsubscribe decrements the active subscription gauge.
func (m *Metrics) RecordUnsubscribe() {
	m.SubscriptionsActive.Dec()
}

// RecordRequestStart increments the in-flight request gauge.
func (m *Metrics) RecordRequestStart() {
	m.RequestsInFlight.Inc()
}

// RecordRequestEnd decrements the in-flight gauge and observes duration.
func (m *Metrics) RecordRequestEnd(d time.Duration, timedOut bool) {
	m.RequestsInFlight.Dec()
	m.RequestDuration.Observe(d.Seconds())
	if timedOut {
		m.RequestTimeouts.Inc()
	}
}

// RecordBackpressureDrop increments the backpressure drop counter for a direction.
func (m *Metrics) RecordBackpressureDrop(direction string) {
	m.BackpressureDrops.WithLabelValues(direction).Inc()
}

// RecordOutboundQueueDepth observes the depth of a per-session outbound queue.
func (m *Metrics) RecordOutboundQueueDepth(depth int) {
	m.OutboundQueueDepth.Observe(float64(depth))
}

// RecordBusStatus updates the bus connection status gauge.
func (m *Metrics) RecordBusStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.BusConnected.Set(value)
}

// RecordBusRTT updates the bus round-trip time gauge.
func (m *Metrics) RecordBusRTT(rtt time.Duration) {
	m.BusRTT.Set(float64(rtt.Milliseconds()))
}

// RecordBusReconnect increments the bus reconnection counter.
func (m *Metrics) RecordBusReconnect() {
	m.BusReconnects.Inc()
}

// RecordCircuitBreakerState updates the bus circuit breaker status gauge.
func (m *Metrics) RecordCircuitBreakerState(state int) {
	m.BusCircuitBreaker.Set(float64(state))
}
