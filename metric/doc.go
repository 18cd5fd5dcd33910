// Package metric provides Prometheus-based metrics collection for gateway
// observability.
//
// The package offers a centralized metrics registry managing both core
// gateway metrics (sessions, protocol frames, permissions, backpressure,
// bus connectivity) and component-specific metrics registered at runtime.
//
// # Architecture
//
// The package follows a two-layer design:
//
//  1. Core Metrics: gateway-level metrics automatically registered (Metrics type)
//  2. Component Registry: extensible registration for component-specific metrics (MetricsRegistrar interface)
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	coreMetrics := registry.CoreMetrics()
//	coreMetrics.RecordSessionOpened()
//	coreMetrics.RecordFrameReceived("subscribe", 128)
//
// The registry's Prometheus registry is exposed over HTTP by the gateway
// package, which mounts promhttp.HandlerFor(registry.PrometheusRegistry(), ...)
// on its own listener mux alongside /healthz, rather than this package
// running a dedicated metrics server.
//
// # Component-Specific Metrics
//
// Components register custom metrics through the registry:
//
//	requestCounter := prometheus.NewCounter(prometheus.CounterOpts{
//	    Name: "ws_upgrades_total",
//	    Help: "Total number of WebSocket upgrade attempts",
//	})
//	err := registry.RegisterCounter("transport", "ws_upgrades_total", requestCounter)
//
// # Prometheus Integration
//
// All core metrics use the namespace "mottomesh" and appropriate subsystems:
//
//	mottomesh_session_active
//	mottomesh_protocol_frames_received_total{type="..."}
//	mottomesh_bus_connected
//
// Component-specific metrics use the metric name as provided during registration.
//
// # Thread Safety
//
// All registry operations are thread-safe: registration methods use mutex
// protection, metric recording is lock-free (Prometheus guarantee), and
// CoreMetrics()/PrometheusRegistry() return thread-safe shared instances.
//
// # Design Decisions
//
// Centralized Registry: a single registry avoids namespace collisions and
// lets the gateway discover registered metrics at runtime.
//
// Core vs Component Metrics: core metrics capture gateway-wide state
// (sessions, bus health); component metrics let transport/bus code add
// detail without touching this package.
package metric
