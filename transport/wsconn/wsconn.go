// Package wsconn adapts a gorilla/websocket connection to the transport.Conn
// interface: binary frames only, a hard frame-size cap, and a keepalive
// ping/pong cadence.
package wsconn

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bowber/mottomesh/errors"
	"github.com/bowber/mottomesh/transport"
)

// KeepaliveInterval is how often the server pings an idle connection.
const KeepaliveInterval = 30 * time.Second

// PongDeadline is how long the server waits for a pong before treating the
// connection as dead.
const PongDeadline = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conn wraps a single upgraded WebSocket connection.
type Conn struct {
	ws *websocket.Conn

	writeMu  chan struct{}
	stopKeep chan struct{}
	closeOnce sync.Once
}

// Upgrade upgrades an HTTP request to a WebSocket connection and starts its
// keepalive ping loop.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, errors.WrapTransient(err, "wsconn", "Upgrade", "upgrade to websocket")
	}

	ws.SetReadLimit(transport.MaxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(KeepaliveInterval + PongDeadline))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(KeepaliveInterval + PongDeadline))
	})

	c := &Conn{
		ws:       ws,
		writeMu:  make(chan struct{}, 1),
		stopKeep: make(chan struct{}),
	}
	c.writeMu <- struct{}{}

	go c.keepaliveLoop()

	return c, nil
}

func (c *Conn) keepaliveLoop() {
	ticker := time.NewTicker(KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			<-c.writeMu
			_ = c.ws.SetWriteDeadline(time.Now().Add(PongDeadline))
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.writeMu <- struct{}{}
			if err != nil {
				return
			}
		case <-c.stopKeep:
			return
		}
	}
}

// ReadFrame reads one binary frame. Text frames are a protocol error.
func (c *Conn) ReadFrame(ctx context.Context) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)

	go func() {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			done <- result{nil, errors.WrapTransient(err, "wsconn", "ReadFrame", "read from websocket")}
			return
		}
		if msgType != websocket.BinaryMessage {
			done <- result{nil, errors.WrapInvalid(errors.ErrInvalidData, "wsconn", "ReadFrame", "text frames are rejected")}
			return
		}
		done <- result{data, nil}
	}()

	select {
	case r := <-done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, errors.WrapTransient(ctx.Err(), "wsconn", "ReadFrame", "context cancelled")
	}
}

// WriteFrame writes one binary frame.
func (c *Conn) WriteFrame(ctx context.Context, frame []byte) error {
	if len(frame) > transport.MaxFrameSize {
		return errors.WrapInvalid(errors.ErrFrameTooLarge, "wsconn", "WriteFrame", "frame exceeds maximum size")
	}

	select {
	case <-c.writeMu:
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "wsconn", "WriteFrame", "context cancelled")
	}
	defer func() { c.writeMu <- struct{}{} }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetWriteDeadline(deadline)
	} else {
		_ = c.ws.SetWriteDeadline(time.Time{})
	}

	if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return errors.WrapTransient(err, "wsconn", "WriteFrame", "write to websocket")
	}
	return nil
}

// Close closes the underlying connection, sending reason as a close frame
// payload where the protocol allows it.
func (c *Conn) Close(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stopKeep)

		<-c.writeMu
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
			time.Now().Add(time.Second))
		c.writeMu <- struct{}{}

		if closeErr := c.ws.Close(); closeErr != nil {
			err = errors.Wrap(closeErr, "wsconn", "Close", "close websocket")
		}
	})
	return err
}

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
