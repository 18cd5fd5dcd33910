// Package wtconn adapts a quic-go/webtransport-go session to the
// transport.Conn interface. Unlike WebSocket, WebTransport has no built-in
// message framing: a bidirectional stream carries exactly one frame
// terminated by end-of-stream, and a datagram carries exactly one frame by
// itself. This package is the narrowest-grounded piece of the transport
// layer since no library in the reference pack exercises WebTransport
// directly; its shape follows quic-go/webtransport-go's published Session
// API.
package wtconn

import (
	"context"
	"io"
	"sync"

	"github.com/quic-go/webtransport-go"

	"github.com/bowber/mottomesh/errors"
	"github.com/bowber/mottomesh/transport"
)

// datagramMTU is the conservative payload size under which a frame is sent
// as a datagram instead of a bidirectional stream.
const datagramMTU = 1200

// Conn wraps a single WebTransport session.
type Conn struct {
	session *webtransport.Session

	frames chan frameOrErr

	closeOnce sync.Once
	done      chan struct{}
}

type frameOrErr struct {
	data []byte
	err  error
}

// New wraps an already-established WebTransport session and starts its
// stream/datagram intake loops.
func New(session *webtransport.Session) *Conn {
	c := &Conn{
		session: session,
		frames:  make(chan frameOrErr, 16),
		done:    make(chan struct{}),
	}

	go c.acceptStreams()
	go c.acceptDatagrams()

	return c
}

func (c *Conn) acceptStreams() {
	for {
		stream, err := c.session.AcceptStream(c.session.Context())
		if err != nil {
			c.deliver(frameOrErr{err: errors.WrapTransient(err, "wtconn", "AcceptStream", "accept incoming stream")})
			return
		}
		go c.readStream(stream)
	}
}

func (c *Conn) readStream(stream webtransport.Stream) {
	limited := io.LimitReader(stream, transport.MaxFrameSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		c.deliver(frameOrErr{err: errors.WrapTransient(err, "wtconn", "readStream", "read stream to completion")})
		return
	}
	if len(data) > transport.MaxFrameSize {
		c.deliver(frameOrErr{err: errors.WrapInvalid(errors.ErrFrameTooLarge, "wtconn", "readStream", "stream frame exceeds maximum size")})
		return
	}
	c.deliver(frameOrErr{data: data})
}

func (c *Conn) acceptDatagrams() {
	for {
		data, err := c.session.ReceiveDatagram(c.session.Context())
		if err != nil {
			c.deliver(frameOrErr{err: errors.WrapTransient(err, "wtconn", "ReceiveDatagram", "receive datagram")})
			return
		}
		c.deliver(frameOrErr{data: data})
	}
}

func (c *Conn) deliver(f frameOrErr) {
	select {
	case c.frames <- f:
	case <-c.done:
	}
}

// ReadFrame returns the next frame delivered on any stream or datagram.
func (c *Conn) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case f := <-c.frames:
		return f.data, f.err
	case <-ctx.Done():
		return nil, errors.WrapTransient(ctx.Err(), "wtconn", "ReadFrame", "context cancelled")
	case <-c.done:
		return nil, errors.WrapTransient(errors.ErrConnectionLost, "wtconn", "ReadFrame", "session closed")
	}
}

// WriteFrame sends frame as a datagram if it fits the datagram MTU,
// otherwise opens a new bidirectional stream and closes its send side.
func (c *Conn) WriteFrame(ctx context.Context, frame []byte) error {
	if len(frame) > transport.MaxFrameSize {
		return errors.WrapInvalid(errors.ErrFrameTooLarge, "wtconn", "WriteFrame", "frame exceeds maximum size")
	}

	if len(frame) <= datagramMTU {
		if err := c.session.SendDatagram(frame); err != nil {
			return errors.WrapTransient(err, "wtconn", "WriteFrame", "send datagram")
		}
		return nil
	}

	stream, err := c.session.OpenStreamSync(ctx)
	if err != nil {
		return errors.WrapTransient(err, "wtconn", "WriteFrame", "open stream")
	}

	if _, err := stream.Write(frame); err != nil {
		return errors.WrapTransient(err, "wtconn", "WriteFrame", "write to stream")
	}
	if err := stream.Close(); err != nil {
		return errors.WrapTransient(err, "wtconn", "WriteFrame", "close send side")
	}
	return nil
}

// Close closes the session, reporting reason to the peer.
func (c *Conn) Close(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if closeErr := c.session.CloseWithError(0, reason); closeErr != nil {
			err = errors.Wrap(closeErr, "wtconn", "Close", "close session")
		}
	})
	return err
}

// RemoteAddr returns the peer's network address.
func (c *Conn) RemoteAddr() string {
	return c.session.RemoteAddr().String()
}
