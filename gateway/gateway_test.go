package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bowber/mottomesh/auth"
	"github.com/bowber/mottomesh/bus"
	"github.com/bowber/mottomesh/errors"
	"github.com/bowber/mottomesh/protocol"
	"github.com/bowber/mottomesh/session"
	"github.com/bowber/mottomesh/subject"
)

// These tests wire two sessions through a shared in-process bus fake,
// reproducing the end-to-end scenarios without a real NATS server or TLS
// listener. They exercise the same dispatch path spawnSession uses
// (session.New against a transport.Conn), just without the network hop.

const gatewayTestSecret = "gateway-test-secret"

type fakeConn struct {
	incoming chan []byte
	outgoing chan []byte

	mu          sync.Mutex
	closed      chan struct{}
	closeReason string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 16),
		outgoing: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-c.incoming:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, errors.ErrConnectionLost
	}
}

func (c *fakeConn) WriteFrame(ctx context.Context, frame []byte) error {
	select {
	case c.outgoing <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
	default:
		c.closeReason = reason
		close(c.closed)
	}
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "fake-peer" }

func (c *fakeConn) recvServer(t *testing.T) protocol.ServerMessage {
	t.Helper()
	select {
	case frame := <-c.outgoing:
		msg, err := protocol.DecodeServer(frame)
		if err != nil {
			t.Fatalf("DecodeServer() error = %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server frame")
		return nil
	}
}

type fakeSubscription struct {
	pattern string
	ch      chan bus.Message

	once sync.Once
	done chan struct{}
}

func newFakeSubscription(pattern string) *fakeSubscription {
	return &fakeSubscription{pattern: pattern, ch: make(chan bus.Message, 16), done: make(chan struct{})}
}

func (f *fakeSubscription) Messages() <-chan bus.Message { return f.ch }

func (f *fakeSubscription) Unsubscribe() error {
	f.once.Do(func() {
		close(f.done)
		close(f.ch)
	})
	return nil
}

// sharedBus is an in-process BusClient shared by every session spawned in a
// test, standing in for the NATS broker that ties independent sessions
// together in production.
type sharedBus struct {
	mu   sync.Mutex
	subs []*fakeSubscription
}

func (b *sharedBus) Subscribe(pattern string) (session.Subscriber, error) {
	sub := newFakeSubscription(pattern)
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub, nil
}

func (b *sharedBus) Publish(_ context.Context, subj string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if subject.Match(sub.pattern, subj) {
			select {
			case sub.ch <- bus.Message{Subject: subj, Payload: payload}:
			case <-sub.done:
			}
		}
	}
	return nil
}

func (b *sharedBus) Request(ctx context.Context, _ string, _ []byte, timeout time.Duration) ([]byte, error) {
	select {
	case <-time.After(timeout):
		return nil, errors.WrapInvalid(errors.ErrRequestTimeout, "fakebus", "Request", "no responder")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func signGatewayToken(t *testing.T, permissions, allowed, deny []string) string {
	t.Helper()
	claims := auth.Claims{
		Permissions:     permissions,
		AllowedSubjects: allowed,
		DenySubjects:    deny,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "test-user",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(gatewayTestSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func startGatewaySession(t *testing.T, b session.BusClient) (*fakeConn, context.CancelFunc) {
	t.Helper()
	conn := newFakeConn()
	verifier := auth.NewVerifier(gatewayTestSecret)
	s := session.New(conn, b, verifier, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Run(ctx) }()
	return conn, cancel
}

// TestGateway_HappyPathPublishAcrossSessions reproduces spec scenario 1: two
// independently-authenticated sessions exchanging a message over the shared
// bus, the configuration the session-level tests can't exercise alone.
func TestGateway_HappyPathPublishAcrossSessions(t *testing.T) {
	b := &sharedBus{}

	connA, cancelA := startGatewaySession(t, b)
	defer cancelA()
	connB, cancelB := startGatewaySession(t, b)
	defer cancelB()

	connA.incoming <- protocol.EncodeClient(protocol.ClientAuth{
		Token: signGatewayToken(t, []string{"publish", "subscribe"}, []string{"messages.>"}, nil),
	})
	if msg := connA.recvServer(t); msg.(protocol.ServerAuthOk).SessionID == "" {
		t.Fatal("expected non-empty session id for A")
	}

	connB.incoming <- protocol.EncodeClient(protocol.ClientAuth{
		Token: signGatewayToken(t, []string{"publish", "subscribe"}, []string{"messages.>"}, nil),
	})
	connB.recvServer(t)

	connA.incoming <- protocol.EncodeClient(protocol.ClientSubscribe{Subject: "messages.*", ID: 1})
	if ok, isOk := connA.recvServer(t).(protocol.ServerSubscribeOk); !isOk || ok.ID != 1 {
		t.Fatalf("expected SubscribeOk{1}, got %#v", ok)
	}

	connB.incoming <- protocol.EncodeClient(protocol.ClientPublish{
		Subject: "messages.x", Payload: []byte{1, 2, 3},
	})

	delivery, isDelivery := connA.recvServer(t).(protocol.ServerMessageDelivery)
	if !isDelivery {
		t.Fatal("expected ServerMessageDelivery on A")
	}
	if delivery.SubscriptionID != 1 || delivery.Subject != "messages.x" || string(delivery.Payload) != "\x01\x02\x03" {
		t.Errorf("unexpected delivery: %#v", delivery)
	}
}

// TestGateway_DenyWins reproduces spec scenario 2.
func TestGateway_DenyWins(t *testing.T) {
	b := &sharedBus{}
	conn, cancel := startGatewaySession(t, b)
	defer cancel()

	conn.incoming <- protocol.EncodeClient(protocol.ClientAuth{
		Token: signGatewayToken(t, []string{"publish"}, []string{"messages.>"}, []string{"messages.admin"}),
	})
	conn.recvServer(t)

	conn.incoming <- protocol.EncodeClient(protocol.ClientPublish{Subject: "messages.admin", Payload: []byte("x")})
	denied, isErr := conn.recvServer(t).(protocol.ServerError)
	if !isErr || denied.Code != protocol.CodeForbidden {
		t.Fatalf("expected Error{403}, got %#v", denied)
	}

	conn.incoming <- protocol.EncodeClient(protocol.ClientPublish{Subject: "messages.user", Payload: []byte("x")})
	select {
	case frame := <-conn.outgoing:
		t.Fatalf("expected no frame for accepted publish, got %v", frame)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestGateway_RequestTimeout reproduces spec scenario 4.
func TestGateway_RequestTimeout(t *testing.T) {
	b := &sharedBus{}
	conn, cancel := startGatewaySession(t, b)
	defer cancel()

	conn.incoming <- protocol.EncodeClient(protocol.ClientAuth{
		Token: signGatewayToken(t, []string{"request"}, []string{"svc.>"}, nil),
	})
	conn.recvServer(t)

	conn.incoming <- protocol.EncodeClient(protocol.ClientRequest{
		Subject: "svc.q", Payload: nil, TimeoutMs: 50, RequestID: 7,
	})

	reqErr, ok := conn.recvServer(t).(protocol.ServerRequestError)
	if !ok || reqErr.RequestID != 7 || reqErr.Reason != "timeout" {
		t.Fatalf("expected RequestError{7,timeout}, got %#v", reqErr)
	}
}

// TestGateway_DuplicateSubscriptionID reproduces spec scenario 5.
func TestGateway_DuplicateSubscriptionID(t *testing.T) {
	b := &sharedBus{}
	conn, cancel := startGatewaySession(t, b)
	defer cancel()

	conn.incoming <- protocol.EncodeClient(protocol.ClientAuth{
		Token: signGatewayToken(t, []string{"subscribe"}, []string{"a", "b"}, nil),
	})
	conn.recvServer(t)

	conn.incoming <- protocol.EncodeClient(protocol.ClientSubscribe{Subject: "a", ID: 1})
	if ok, isOk := conn.recvServer(t).(protocol.ServerSubscribeOk); !isOk || ok.ID != 1 {
		t.Fatalf("expected SubscribeOk{1}, got %#v", ok)
	}

	conn.incoming <- protocol.EncodeClient(protocol.ClientSubscribe{Subject: "b", ID: 1})
	dupErr, isErr := conn.recvServer(t).(protocol.ServerSubscribeError)
	if !isErr || dupErr.ID != 1 || dupErr.Reason != "duplicate id" {
		t.Fatalf("expected SubscribeError{1,duplicate id}, got %#v", dupErr)
	}

	if err := b.Publish(context.Background(), "a", []byte("still-alive")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	delivery, isDelivery := conn.recvServer(t).(protocol.ServerMessageDelivery)
	if !isDelivery || delivery.SubscriptionID != 1 {
		t.Fatalf("expected original subscription to still deliver, got %#v", delivery)
	}
}

// TestGateway_UnauthenticatedPublish reproduces spec scenario 6.
func TestGateway_UnauthenticatedPublish(t *testing.T) {
	b := &sharedBus{}
	conn, cancel := startGatewaySession(t, b)
	defer cancel()

	conn.incoming <- protocol.EncodeClient(protocol.ClientPublish{Subject: "messages.x", Payload: []byte("x")})

	unauthorized, isErr := conn.recvServer(t).(protocol.ServerError)
	if !isErr || unauthorized.Code != protocol.CodeUnauthorized {
		t.Fatalf("expected Error{401}, got %#v", unauthorized)
	}

	select {
	case frame := <-conn.outgoing:
		t.Fatalf("expected no further frames after the 401, got %v", frame)
	case <-time.After(100 * time.Millisecond):
	}
}
