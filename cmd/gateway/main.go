// Package main is the entry point for the MottoMesh gateway: a WebTransport
// and WebSocket message-bus front door with JWT authentication, subject-level
// permissions, and a binary wire protocol bridging to NATS.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/bowber/mottomesh/auth"
	"github.com/bowber/mottomesh/bus"
	"github.com/bowber/mottomesh/config"
	"github.com/bowber/mottomesh/gateway"
	"github.com/bowber/mottomesh/metric"
	"github.com/bowber/mottomesh/session"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("gateway failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting mottomesh gateway", "version", Version, "build_time", BuildTime)

	registry := metric.NewMetricsRegistry()

	busClient, err := bus.NewClient(cfg.NATSURL,
		bus.WithMetrics(registry),
		bus.WithLogger(slogBusLogger{logger}),
	)
	if err != nil {
		return fmt.Errorf("create bus client: %w", err)
	}

	ctx := context.Background()
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = busClient.Connect(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	defer busClient.Close(context.Background())

	verifier := auth.NewVerifier(cfg.JWTSecret)
	busAdapter := session.NewBusAdapter(busClient)

	listener, err := gateway.New(cfg, busAdapter, verifier, registry, logger)
	if err != nil {
		return fmt.Errorf("build listener: %w", err)
	}

	stopHealthPoll := pollBusHealth(busClient, listener)
	defer stopHealthPoll()

	return runWithSignalHandling(ctx, listener)
}

// runWithSignalHandling drives the listener until SIGINT/SIGTERM, then
// returns once Listener.Run has finished draining sessions.
func runWithSignalHandling(ctx context.Context, listener *gateway.Listener) error {
	signalCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("gateway listening")
	err := listener.Run(signalCtx)
	slog.Info("gateway shutdown complete")
	return err
}

// pollBusHealth periodically reflects the bus client's connection status
// into the listener's /healthz aggregate. Returns a function that stops the
// poll loop.
func pollBusHealth(busClient *bus.Client, listener *gateway.Listener) func() {
	ticker := time.NewTicker(5 * time.Second)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if busClient.Status() == bus.StatusConnected {
					listener.RecordBusHealth(nil)
				} else {
					listener.RecordBusHealth(fmt.Errorf("bus status: %s", busClient.Status()))
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
	}
}

// slogBusLogger adapts a *slog.Logger to the bus package's Logger interface.
type slogBusLogger struct {
	logger *slog.Logger
}

func (l slogBusLogger) Printf(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l slogBusLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}
