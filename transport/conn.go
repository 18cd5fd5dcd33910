// Package transport defines the uniform framing interface both WebSocket
// and WebTransport connections present to a session: read the next frame,
// write a frame, close with a reason. Neither implementation leaks its
// wire-level framing details past this boundary.
package transport

import "context"

// Conn is one accepted client connection, abstracted over its transport.
type Conn interface {
	// ReadFrame blocks until the next application frame arrives, or ctx is
	// cancelled, or the connection closes.
	ReadFrame(ctx context.Context) ([]byte, error)

	// WriteFrame sends one application frame. WriteFrame may block if the
	// peer applies backpressure.
	WriteFrame(ctx context.Context, frame []byte) error

	// Close closes the connection, reporting reason to the peer where the
	// transport supports it.
	Close(reason string) error

	// RemoteAddr identifies the peer for logging.
	RemoteAddr() string
}

// MaxFrameSize bounds a single frame at this layer, matching the wire
// protocol's own cap so neither layer can be bypassed independently.
const MaxFrameSize = 16 * 1024 * 1024
