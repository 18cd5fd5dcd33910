// Package gateway binds the two client-facing transports (WebTransport and
// WebSocket), performs the TLS handshake for each, and spawns one
// session.Session per accepted connection. Process-wide resources (the bus
// client, the token verifier, the metrics registry) are constructed once and
// shared immutably across every session.
package gateway

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"
	"golang.org/x/sync/errgroup"

	"github.com/bowber/mottomesh/auth"
	"github.com/bowber/mottomesh/config"
	"github.com/bowber/mottomesh/errors"
	"github.com/bowber/mottomesh/health"
	"github.com/bowber/mottomesh/metric"
	"github.com/bowber/mottomesh/pkg/tlsutil"
	"github.com/bowber/mottomesh/session"
	"github.com/bowber/mottomesh/transport"
	"github.com/bowber/mottomesh/transport/wsconn"
	"github.com/bowber/mottomesh/transport/wtconn"
)

// shutdownDrain bounds how long Run waits for in-flight sessions to close
// their frames after a shutdown signal before returning anyway.
const shutdownDrain = 10 * time.Second

// Listener binds the WebTransport and WebSocket endpoints described by cfg
// and dispatches accepted connections to session.Session.
type Listener struct {
	cfg      *config.GatewayConfig
	busClt   session.BusClient
	verifier *auth.Verifier
	registry *metric.MetricsRegistry
	metrics  *metric.Metrics
	logger   *slog.Logger

	tlsConfig *tls.Config

	health *health.Monitor

	sessionsWg sync.WaitGroup

	wsServer *http.Server
	wtServer *webtransport.Server
}

// New constructs a Listener. It loads (or bootstraps) the TLS material
// named by cfg before returning, so a misconfigured cert path fails fast
// instead of on first connection.
func New(cfg *config.GatewayConfig, busClt session.BusClient, verifier *auth.Verifier, registry *metric.MetricsRegistry, logger *slog.Logger) (*Listener, error) {
	hosts := []string{cfg.GatewayHost, "localhost", "127.0.0.1"}
	tlsConfig, err := tlsutil.EnsureServerCertificate(cfg.TLSCertPath, cfg.TLSKeyPath, hosts, cfg.TLSMinVersion)
	if err != nil {
		return nil, errors.WrapFatal(err, "gateway", "New", "load TLS material")
	}
	// WebTransport negotiates over HTTP/3, which requires the h3 ALPN token.
	tlsConfig.NextProtos = append(tlsConfig.NextProtos, http3.NextProtoH3)

	if logger == nil {
		logger = slog.Default()
	}

	l := &Listener{
		cfg:       cfg,
		busClt:    busClt,
		verifier:  verifier,
		registry:  registry,
		metrics:   registry.CoreMetrics(),
		logger:    logger,
		tlsConfig: tlsConfig,
		health:    health.NewMonitor(),
	}
	l.health.Update("bus", health.NewHealthy("bus", "not yet checked"))

	return l, nil
}

// Run binds both listeners and blocks until ctx is cancelled or a listener
// fails. On cancellation it stops accepting new connections, waits up to
// shutdownDrain for active sessions to close on their own (each session's
// context is a child of ctx, so cancellation reaches them directly), then
// returns.
func (l *Listener) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return l.runWebSocket(gctx) })
	g.Go(func() error { return l.runWebTransport(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		l.logger.Info("shutdown signal received, draining sessions")
		return l.shutdown()
	})

	err := g.Wait()
	if err != nil && errors.IsFatal(err) {
		return err
	}
	if err != nil {
		l.logger.Warn("listener stopped with error", "error", err)
	}
	return nil
}

func (l *Listener) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDrain)
	defer cancel()

	if l.wsServer != nil {
		_ = l.wsServer.Shutdown(shutdownCtx)
	}
	if l.wtServer != nil {
		_ = l.wtServer.Close()
	}

	drained := make(chan struct{})
	go func() {
		l.sessionsWg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-shutdownCtx.Done():
		l.logger.Warn("shutdown drain timed out with sessions still open")
	}
	return nil
}

// runWebSocket binds the WSS listener on GatewayPort+1, serving the session
// upgrade path plus /healthz and /metrics.
func (l *Listener) runWebSocket(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		l.handleWebSocket(ctx, w, r)
	})
	mux.HandleFunc("/healthz", l.handleHealthz)
	mux.Handle("/metrics", promhttp.HandlerFor(l.registry.PrometheusRegistry(), promhttp.HandlerOpts{}))

	addr := fmt.Sprintf("%s:%d", l.cfg.GatewayHost, l.cfg.WebSocketPort())
	l.wsServer = &http.Server{
		Addr:      addr,
		Handler:   mux,
		TLSConfig: l.tlsConfig.Clone(),
	}

	l.logger.Info("websocket listener starting", "addr", addr)
	err := l.wsServer.ListenAndServeTLS("", "")
	if err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "gateway", "runWebSocket", "serve websocket listener")
	}
	return nil
}

func (l *Listener) handleWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := wsconn.Upgrade(w, r)
	if err != nil {
		l.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	l.spawnSession(ctx, conn)
}

// runWebTransport binds the WebTransport (HTTP/3 over QUIC) listener on
// GatewayPort.
func (l *Listener) runWebTransport(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/wt", func(w http.ResponseWriter, r *http.Request) {
		l.handleWebTransport(ctx, w, r)
	})

	addr := fmt.Sprintf("%s:%d", l.cfg.GatewayHost, l.cfg.GatewayPort)
	l.wtServer = &webtransport.Server{
		H3: http3.Server{
			Addr:      addr,
			TLSConfig: l.tlsConfig.Clone(),
			Handler:   mux,
		},
		CheckOrigin: func(*http.Request) bool { return true },
	}

	l.logger.Info("webtransport listener starting", "addr", addr)
	err := l.wtServer.ListenAndServe()
	if err != nil && !isClosedErr(err) {
		return errors.WrapFatal(err, "gateway", "runWebTransport", "serve webtransport listener")
	}
	return nil
}

func (l *Listener) handleWebTransport(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	wtSession, err := l.wtServer.Upgrade(w, r)
	if err != nil {
		l.logger.Warn("webtransport upgrade failed", "remote", r.RemoteAddr, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	l.spawnSession(ctx, wtconn.New(wtSession))
}

func (l *Listener) spawnSession(ctx context.Context, conn transport.Conn) {
	sessionCtx, cancel := context.WithCancel(ctx)

	l.sessionsWg.Add(1)
	go func() {
		defer l.sessionsWg.Done()
		defer cancel()

		s := session.New(conn, l.busClt, l.verifier, l.metrics)
		if err := s.Run(sessionCtx); err != nil {
			l.logger.Debug("session ended", "remote", conn.RemoteAddr(), "error", err)
		}
	}()
}

func (l *Listener) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	status := l.health.AggregateHealth("gateway")
	w.Header().Set("Content-Type", "application/json")
	if !status.IsHealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_, _ = fmt.Fprintf(w, `{"status":%q,"message":%q}`, status.Status, status.Message)
}

// RecordBusHealth lets the caller feed bus connectivity into the /healthz
// aggregate without the gateway package depending on the bus package's
// concrete Client type.
func (l *Listener) RecordBusHealth(err error) {
	l.health.Update("bus", health.FromError("bus", err))
}

// isClosedErr reports whether err is the expected result of calling
// wtServer.Close() to unblock ListenAndServe during shutdown. webtransport-go
// doesn't export a sentinel for this, so a substring check on the
// underlying quic.Transport's error is the best available signal.
func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, http.ErrServerClosed) {
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "server closed")
}
