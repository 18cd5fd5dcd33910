package protocol

import (
	"encoding/binary"
	"hash/fnv"
	"unicode/utf8"

	"github.com/bowber/mottomesh/errors"
)

// Fingerprint returns a hash identifying this codec's discriminant layout.
// No frame carries it; it is exported so tooling and tests can detect a
// change in the discriminant layout even when the version byte is unchanged.
func Fingerprint() uint32 {
	h := fnv.New32a()
	h.Write([]byte{ProtocolVersion})
	for i := uint8(0); i < 6; i++ {
		h.Write([]byte{i})
	}
	for i := uint8(0); i < 9; i++ {
		h.Write([]byte{0x80 | i})
	}
	return h.Sum32()
}

// EncodeClient encodes a ClientMessage into a versioned frame.
func EncodeClient(msg ClientMessage) []byte {
	w := newWriter()
	w.u8(ProtocolVersion)
	w.u8(msg.clientDiscriminant())

	switch m := msg.(type) {
	case ClientAuth:
		w.str(m.Token)
	case ClientSubscribe:
		w.str(m.Subject)
		w.u64(m.ID)
	case ClientUnsubscribe:
		w.u64(m.ID)
	case ClientPublish:
		w.str(m.Subject)
		w.bytes(m.Payload)
	case ClientRequest:
		w.str(m.Subject)
		w.bytes(m.Payload)
		w.u32(m.TimeoutMs)
		w.u64(m.RequestID)
	case ClientPing:
		// no fields
	}

	return w.buf
}

// EncodeServer encodes a ServerMessage into a versioned frame.
func EncodeServer(msg ServerMessage) []byte {
	w := newWriter()
	w.u8(ProtocolVersion)
	w.u8(msg.serverDiscriminant())

	switch m := msg.(type) {
	case ServerAuthOk:
		w.str(m.SessionID)
	case ServerAuthError:
		w.str(m.Reason)
	case ServerSubscribeOk:
		w.u64(m.ID)
	case ServerSubscribeError:
		w.u64(m.ID)
		w.str(m.Reason)
	case ServerMessageDelivery:
		w.u64(m.SubscriptionID)
		w.str(m.Subject)
		w.bytes(m.Payload)
	case ServerResponse:
		w.u64(m.RequestID)
		w.bytes(m.Payload)
	case ServerRequestError:
		w.u64(m.RequestID)
		w.str(m.Reason)
	case ServerError:
		w.u32(m.Code)
		w.str(m.Message)
	case ServerPong:
		// no fields
	}

	return w.buf
}

// DecodeClient decodes a versioned frame into a ClientMessage.
func DecodeClient(data []byte) (ClientMessage, error) {
	r, err := newReader(data)
	if err != nil {
		return nil, err
	}

	discriminant, err := r.u8()
	if err != nil {
		return nil, err
	}

	var msg ClientMessage
	switch discriminant {
	case 0:
		token, err := r.str()
		if err != nil {
			return nil, err
		}
		msg = ClientAuth{Token: token}
	case 1:
		subj, err := r.str()
		if err != nil {
			return nil, err
		}
		id, err := r.u64()
		if err != nil {
			return nil, err
		}
		msg = ClientSubscribe{Subject: subj, ID: id}
	case 2:
		id, err := r.u64()
		if err != nil {
			return nil, err
		}
		msg = ClientUnsubscribe{ID: id}
	case 3:
		subj, err := r.str()
		if err != nil {
			return nil, err
		}
		payload, err := r.bytes()
		if err != nil {
			return nil, err
		}
		msg = ClientPublish{Subject: subj, Payload: payload}
	case 4:
		subj, err := r.str()
		if err != nil {
			return nil, err
		}
		payload, err := r.bytes()
		if err != nil {
			return nil, err
		}
		timeoutMs, err := r.u32()
		if err != nil {
			return nil, err
		}
		requestID, err := r.u64()
		if err != nil {
			return nil, err
		}
		msg = ClientRequest{Subject: subj, Payload: payload, TimeoutMs: timeoutMs, RequestID: requestID}
	case 5:
		msg = ClientPing{}
	default:
		return nil, errors.WrapInvalid(errors.ErrUnknownDiscriminant, "protocol", "DecodeClient", "unknown client discriminant")
	}

	if !r.exhausted() {
		return nil, errors.WrapInvalid(errors.ErrTrailingBytes, "protocol", "DecodeClient", "trailing bytes after message")
	}

	return msg, nil
}

// DecodeServer decodes a versioned frame into a ServerMessage.
func DecodeServer(data []byte) (ServerMessage, error) {
	r, err := newReader(data)
	if err != nil {
		return nil, err
	}

	discriminant, err := r.u8()
	if err != nil {
		return nil, err
	}

	var msg ServerMessage
	switch discriminant {
	case 0:
		sessionID, err := r.str()
		if err != nil {
			return nil, err
		}
		msg = ServerAuthOk{SessionID: sessionID}
	case 1:
		reason, err := r.str()
		if err != nil {
			return nil, err
		}
		msg = ServerAuthError{Reason: reason}
	case 2:
		id, err := r.u64()
		if err != nil {
			return nil, err
		}
		msg = ServerSubscribeOk{ID: id}
	case 3:
		id, err := r.u64()
		if err != nil {
			return nil, err
		}
		reason, err := r.str()
		if err != nil {
			return nil, err
		}
		msg = ServerSubscribeError{ID: id, Reason: reason}
	case 4:
		subID, err := r.u64()
		if err != nil {
			return nil, err
		}
		subj, err := r.str()
		if err != nil {
			return nil, err
		}
		payload, err := r.bytes()
		if err != nil {
			return nil, err
		}
		msg = ServerMessageDelivery{SubscriptionID: subID, Subject: subj, Payload: payload}
	case 5:
		requestID, err := r.u64()
		if err != nil {
			return nil, err
		}
		payload, err := r.bytes()
		if err != nil {
			return nil, err
		}
		msg = ServerResponse{RequestID: requestID, Payload: payload}
	case 6:
		requestID, err := r.u64()
		if err != nil {
			return nil, err
		}
		reason, err := r.str()
		if err != nil {
			return nil, err
		}
		msg = ServerRequestError{RequestID: requestID, Reason: reason}
	case 7:
		code, err := r.u32()
		if err != nil {
			return nil, err
		}
		message, err := r.str()
		if err != nil {
			return nil, err
		}
		msg = ServerError{Code: code, Message: message}
	case 8:
		msg = ServerPong{}
	default:
		return nil, errors.WrapInvalid(errors.ErrUnknownDiscriminant, "protocol", "DecodeServer", "unknown server discriminant")
	}

	if !r.exhausted() {
		return nil, errors.WrapInvalid(errors.ErrTrailingBytes, "protocol", "DecodeServer", "trailing bytes after message")
	}

	return msg, nil
}

// writer accumulates an encoded frame. It never fails: a well-formed
// ClientMessage/ServerMessage value cannot overflow MaxFrameSize in
// practice, and encoding is exercised only with values this process
// constructed itself.
type writer struct {
	buf []byte
}

func newWriter() *writer {
	return &writer{buf: make([]byte, 0, 64)}
}

func (w *writer) u8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) str(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// reader consumes a decoded frame. It has already checked the version tag
// and the overall frame size cap by the time it's constructed.
type reader struct {
	buf []byte
	pos int
}

func newReader(data []byte) (*reader, error) {
	if len(data) > MaxFrameSize {
		return nil, errors.WrapInvalid(errors.ErrFrameTooLarge, "protocol", "newReader", "frame exceeds maximum size")
	}
	if len(data) < 1 {
		return nil, errors.WrapInvalid(errors.ErrTruncatedFrame, "protocol", "newReader", "empty frame")
	}

	version := data[0]
	if version != ProtocolVersion {
		return nil, errors.WrapInvalid(errors.ErrProtocolVersion, "protocol", "newReader", "unsupported protocol version")
	}

	return &reader{buf: data, pos: 1}, nil
}

func (r *reader) exhausted() bool {
	return r.pos == len(r.buf)
}

func (r *reader) u8() (uint8, error) {
	if r.pos+1 > len(r.buf) {
		return 0, errors.WrapInvalid(errors.ErrTruncatedFrame, "protocol", "u8", "truncated buffer")
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, errors.WrapInvalid(errors.ErrTruncatedFrame, "protocol", "u32", "truncated buffer")
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, errors.WrapInvalid(errors.ErrTruncatedFrame, "protocol", "u64", "truncated buffer")
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) str() (string, error) {
	b, err := r.lenPrefixed()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.WrapInvalid(errors.ErrInvalidUTF8, "protocol", "str", "invalid UTF-8")
	}
	return string(b), nil
}

func (r *reader) bytes() ([]byte, error) {
	return r.lenPrefixed()
}

func (r *reader) lenPrefixed() ([]byte, error) {
	length, err := r.u32()
	if err != nil {
		return nil, err
	}
	if uint64(r.pos)+uint64(length) > uint64(len(r.buf)) || uint64(r.pos)+uint64(length) > uint64(MaxFrameSize) {
		return nil, errors.WrapInvalid(errors.ErrTruncatedFrame, "protocol", "lenPrefixed", "truncated buffer")
	}
	b := r.buf[r.pos : r.pos+int(length)]
	r.pos += int(length)
	return b, nil
}
