package session

import (
	"context"

	"github.com/bowber/mottomesh/protocol"
)

// enqueue encodes msg and hands it to the writer. A full outbound queue is
// backpressure: enqueue returns an error wrapping errors.ErrBackpressure,
// which the dispatch loop returns to end the session rather than growing the
// channel unboundedly. No error frame is sent to the client for it, since the
// queue that would carry that frame is the one that is full.
func (s *Session) enqueue(msg protocol.ServerMessage) error {
	data := encodeServer(msg)

	select {
	case s.outbound <- data:
		if s.metrics != nil {
			s.metrics.RecordFrameSent(serverMsgName(msg))
			s.metrics.RecordOutboundQueueDepth(len(s.outbound))
		}
		return nil
	default:
		if s.metrics != nil {
			s.metrics.RecordBackpressureDrop("outbound")
		}
		return errorBackpressure()
	}
}

func (s *Session) writerLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case frame := <-s.outbound:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.conn.WriteFrame(wctx, frame)
			cancel()
			if err != nil {
				select {
				case s.writeErr <- err:
				default:
				}
				return
			}
		case <-s.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

func encodeServer(msg protocol.ServerMessage) []byte {
	return protocol.EncodeServer(msg)
}

func serverMsgName(msg protocol.ServerMessage) string {
	switch msg.(type) {
	case protocol.ServerAuthOk:
		return "auth_ok"
	case protocol.ServerAuthError:
		return "auth_error"
	case protocol.ServerSubscribeOk:
		return "subscribe_ok"
	case protocol.ServerSubscribeError:
		return "subscribe_error"
	case protocol.ServerMessageDelivery:
		return "message"
	case protocol.ServerResponse:
		return "response"
	case protocol.ServerRequestError:
		return "request_error"
	case protocol.ServerError:
		return "error"
	case protocol.ServerPong:
		return "pong"
	default:
		return "unknown"
	}
}
