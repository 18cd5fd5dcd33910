// Package session implements the per-connection state machine that turns
// decoded client frames into bus operations and bus activity into encoded
// server frames. One Session owns one transport connection; it never shares
// mutable state with any other session.
package session

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bowber/mottomesh/auth"
	"github.com/bowber/mottomesh/bus"
	"github.com/bowber/mottomesh/errors"
	"github.com/bowber/mottomesh/metric"
	"github.com/bowber/mottomesh/permission"
	"github.com/bowber/mottomesh/protocol"
	"github.com/bowber/mottomesh/transport"
)

// State is the session's position in the authentication lifecycle.
type State int

const (
	StateAwaitingAuth State = iota
	StateAuthenticated
	StateClosing
)

// AuthTimeout bounds how long a connection may sit unauthenticated.
const AuthTimeout = 10 * time.Second

// OutboundQueueCapacity bounds the fan-in channel from subscription and
// request sub-tasks to the writer. Exceeding it closes the session with a
// backpressure error rather than growing memory unboundedly.
const OutboundQueueCapacity = 256

// writeTimeout bounds a single WriteFrame call once the session decides to
// send something.
const writeTimeout = 10 * time.Second

type subscriptionEntry struct {
	id      uint64
	pattern string
	sub     Subscriber
}

type delivery struct {
	subID uint64
	msg   bus.Message
}

type requestResult struct {
	requestID uint64
	payload   []byte
	reason    string // empty on success
	duration  time.Duration
}

// Session drives one authenticated (or authenticating) connection.
type Session struct {
	conn     transport.Conn
	busClt   BusClient
	verifier *auth.Verifier
	metrics  *metric.Metrics

	id    string
	state State
	perms *permission.Set

	subsMu sync.Mutex
	subs   map[uint64]*subscriptionEntry

	pendingMu sync.Mutex
	pending   map[uint64]struct{}

	outbound   chan []byte
	deliveries chan delivery
	reqDone    chan requestResult
	writeErr   chan error

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// New builds a Session around an accepted connection. Run must be called to
// drive it.
func New(conn transport.Conn, busClt BusClient, verifier *auth.Verifier, metrics *metric.Metrics) *Session {
	return &Session{
		conn:       conn,
		busClt:     busClt,
		verifier:   verifier,
		metrics:    metrics,
		state:      StateAwaitingAuth,
		subs:       make(map[uint64]*subscriptionEntry),
		pending:    make(map[uint64]struct{}),
		outbound:   make(chan []byte, OutboundQueueCapacity),
		deliveries: make(chan delivery, 64),
		reqDone:    make(chan requestResult, 64),
		writeErr:   make(chan error, 1),
		closed:     make(chan struct{}),
	}
}

// Run drives the session to completion: authentication, then the
// authenticated dispatch loop, until the connection closes, the context is
// cancelled, or a terminal protocol error occurs.
func (s *Session) Run(ctx context.Context) error {
	s.wg.Add(1)
	go s.writerLoop(ctx)

	if err := s.awaitAuth(ctx); err != nil {
		s.shutdown()
		s.wg.Wait()
		return err
	}

	err := s.mainLoop(ctx)
	s.shutdown()
	s.wg.Wait()
	return err
}

func (s *Session) awaitAuth(ctx context.Context) error {
	authCtx, cancel := context.WithTimeout(ctx, AuthTimeout)
	defer cancel()

	frame, err := s.conn.ReadFrame(authCtx)
	if err != nil {
		_ = s.enqueue(protocol.ServerAuthError{Reason: "timeout"})
		return errors.WrapInvalid(errors.ErrAuthTimeout, "session", "awaitAuth", "no auth frame before deadline")
	}

	msg, err := protocol.DecodeClient(frame)
	if err != nil {
		_ = s.enqueue(protocol.ServerError{Code: protocol.CodeInvalidMessage, Message: "invalid message"})
		return errors.WrapInvalid(err, "session", "awaitAuth", "decode auth frame")
	}

	authMsg, ok := msg.(protocol.ClientAuth)
	if !ok {
		_ = s.enqueue(protocol.ServerError{Code: protocol.CodeUnauthorized, Message: "authentication required"})
		return errors.WrapInvalid(errors.ErrAuthRequired, "session", "awaitAuth", "first frame was not Auth")
	}

	start := time.Now()
	claims, err := s.verifier.Verify(authMsg.Token)
	if s.metrics != nil {
		s.metrics.RecordAuthDuration(time.Since(start))
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordAuthFailure("invalid_token")
		}
		_ = s.enqueue(protocol.ServerAuthError{Reason: "invalid token"})
		return errors.WrapInvalid(err, "session", "awaitAuth", "verify token")
	}

	s.id = uuid.NewString()
	s.perms = claims.PermissionSet()
	s.state = StateAuthenticated
	if s.metrics != nil {
		s.metrics.RecordSessionOpened()
	}
	return s.enqueue(protocol.ServerAuthOk{SessionID: s.id})
}

func (s *Session) mainLoop(ctx context.Context) error {
	frames := make(chan []byte)
	readErrs := make(chan error, 1)

	go func() {
		for {
			frame, err := s.conn.ReadFrame(ctx)
			if err != nil {
				readErrs <- err
				return
			}
			select {
			case frames <- frame:
			case <-s.closed:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return s.closeWithReason("shutting down", protocol.CodeServiceUnavail)

		case err := <-readErrs:
			return errors.WrapTransient(err, "session", "mainLoop", "transport read failed")

		case err := <-s.writeErr:
			return errors.WrapTransient(err, "session", "mainLoop", "transport write failed")

		case frame := <-frames:
			if closeErr := s.handleFrame(ctx, frame); closeErr != nil {
				return closeErr
			}

		case d := <-s.deliveries:
			if closeErr := s.handleDelivery(d); closeErr != nil {
				return closeErr
			}

		case r := <-s.reqDone:
			if closeErr := s.handleRequestResult(r); closeErr != nil {
				return closeErr
			}
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, frame []byte) error {
	msg, err := protocol.DecodeClient(frame)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordDecodeError(classifyDecodeError(err))
		}
		_ = s.enqueue(protocol.ServerError{Code: protocol.CodeInvalidMessage, Message: "invalid message"})
		return errors.WrapInvalid(err, "session", "handleFrame", "decode frame")
	}

	if s.metrics != nil {
		s.metrics.RecordFrameReceived(clientMsgName(msg), len(frame))
	}

	switch m := msg.(type) {
	case protocol.ClientAuth:
		_ = s.enqueue(protocol.ServerError{Code: protocol.CodeInvalidMessage, Message: "already authenticated"})
		return errors.WrapInvalid(errors.ErrAlreadyAuthed, "session", "handleFrame", "duplicate auth attempt")
	case protocol.ClientSubscribe:
		return s.handleSubscribe(m)
	case protocol.ClientUnsubscribe:
		s.handleUnsubscribe(m)
	case protocol.ClientPublish:
		return s.handlePublish(ctx, m)
	case protocol.ClientRequest:
		return s.handleRequest(ctx, m)
	case protocol.ClientPing:
		return s.enqueue(protocol.ServerPong{})
	}
	return nil
}

func (s *Session) handleDelivery(d delivery) error {
	s.subsMu.Lock()
	_, active := s.subs[d.subID]
	s.subsMu.Unlock()
	if !active {
		return nil
	}
	return s.enqueue(protocol.ServerMessageDelivery{
		SubscriptionID: d.subID,
		Subject:        d.msg.Subject,
		Payload:        d.msg.Payload,
	})
}

func (s *Session) handleRequestResult(r requestResult) error {
	s.pendingMu.Lock()
	_, ok := s.pending[r.requestID]
	if ok {
		delete(s.pending, r.requestID)
	}
	s.pendingMu.Unlock()
	if !ok {
		return nil
	}

	if s.metrics != nil {
		s.metrics.RecordRequestEnd(r.duration, r.reason == "timeout")
	}

	if r.reason != "" {
		return s.enqueue(protocol.ServerRequestError{RequestID: r.requestID, Reason: r.reason})
	}
	return s.enqueue(protocol.ServerResponse{RequestID: r.requestID, Payload: r.payload})
}

// closeWithReason enqueues a terminal error frame and reports the close
// reason used to drive Run's return value.
func (s *Session) closeWithReason(reason string, code uint32) error {
	_ = s.enqueue(protocol.ServerError{Code: code, Message: reason})
	return errors.WrapFatal(stderrors.New(reason), "session", "closeWithReason", "session terminated")
}

// shutdown unsubscribes every live subscription, forgets every pending
// request (its reply is discarded; the bus request itself runs until it
// returns, and Run waits for it) and closes the underlying transport. Safe to
// call once; subsequent calls are no-ops.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.closed)

		s.subsMu.Lock()
		subs := make([]*subscriptionEntry, 0, len(s.subs))
		for _, entry := range s.subs {
			subs = append(subs, entry)
		}
		s.subs = make(map[uint64]*subscriptionEntry)
		s.subsMu.Unlock()
		for _, entry := range subs {
			_ = entry.sub.Unsubscribe()
		}

		s.pendingMu.Lock()
		s.pending = make(map[uint64]struct{})
		s.pendingMu.Unlock()

		reason := "session closed"
		if s.state == StateAuthenticated && s.metrics != nil {
			s.metrics.RecordSessionClosed(reason)
		}
		s.state = StateClosing
		_ = s.conn.Close(reason)
	})
}

func errorBackpressure() error {
	return errors.WrapFatal(errors.ErrBackpressure, "session", "enqueue", "outbound queue overflow")
}

func classifyDecodeError(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrUnknownDiscriminant):
		return "unknown_discriminant"
	case stderrors.Is(err, errors.ErrProtocolVersion):
		return "version_mismatch"
	case stderrors.Is(err, errors.ErrTruncatedFrame):
		return "truncated"
	case stderrors.Is(err, errors.ErrInvalidUTF8):
		return "invalid_utf8"
	case stderrors.Is(err, errors.ErrTrailingBytes):
		return "trailing_bytes"
	default:
		return "unknown"
	}
}

func clientMsgName(msg protocol.ClientMessage) string {
	switch msg.(type) {
	case protocol.ClientAuth:
		return "auth"
	case protocol.ClientSubscribe:
		return "subscribe"
	case protocol.ClientUnsubscribe:
		return "unsubscribe"
	case protocol.ClientPublish:
		return "publish"
	case protocol.ClientRequest:
		return "request"
	case protocol.ClientPing:
		return "ping"
	default:
		return "unknown"
	}
}
