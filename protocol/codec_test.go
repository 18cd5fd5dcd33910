package protocol

import (
	"bytes"
	"reflect"
	"testing"
)

func TestClientMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  ClientMessage
	}{
		{"auth", ClientAuth{Token: "my.jwt.token"}},
		{"subscribe", ClientSubscribe{Subject: "test.subject", ID: 42}},
		{"unsubscribe", ClientUnsubscribe{ID: 123}},
		{"publish", ClientPublish{Subject: "events.user.created", Payload: []byte{0x01, 0x02, 0x03}}},
		{"publish empty payload", ClientPublish{Subject: "test", Payload: []byte{}}},
		{"request", ClientRequest{Subject: "api.user.get", Payload: []byte{1, 2, 3}, TimeoutMs: 5000, RequestID: 999}},
		{"request max values", ClientRequest{Subject: "test", Payload: nil, TimeoutMs: 0xFFFFFFFF, RequestID: 0xFFFFFFFFFFFFFFFF}},
		{"ping", ClientPing{}},
		{"unicode subject", ClientSubscribe{Subject: "日本語.テスト", ID: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeClient(tt.msg)
			decoded, err := DecodeClient(encoded)
			if err != nil {
				t.Fatalf("DecodeClient() error = %v", err)
			}

			want := tt.msg
			if pub, ok := want.(ClientPublish); ok && pub.Payload == nil {
				want = ClientPublish{Subject: pub.Subject, Payload: []byte{}}
			}
			if req, ok := want.(ClientRequest); ok && req.Payload == nil {
				want = ClientRequest{Subject: req.Subject, Payload: []byte{}, TimeoutMs: req.TimeoutMs, RequestID: req.RequestID}
			}

			if !reflect.DeepEqual(decoded, want) {
				t.Errorf("round trip mismatch: got %#v, want %#v", decoded, want)
			}
		})
	}
}

func TestServerMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  ServerMessage
	}{
		{"auth ok", ServerAuthOk{SessionID: "session-abc-123"}},
		{"auth error", ServerAuthError{Reason: "invalid token"}},
		{"subscribe ok", ServerSubscribeOk{ID: 42}},
		{"subscribe error", ServerSubscribeError{ID: 42, Reason: "permission denied"}},
		{"message delivery", ServerMessageDelivery{SubscriptionID: 1, Subject: "test", Payload: []byte{1, 2, 3}}},
		{"response", ServerResponse{RequestID: 100, Payload: []byte{0xDE, 0xAD, 0xBE, 0xEF}}},
		{"request error", ServerRequestError{RequestID: 100, Reason: "timeout"}},
		{"error", ServerError{Code: 500, Message: "internal server error"}},
		{"pong", ServerPong{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeServer(tt.msg)
			decoded, err := DecodeServer(encoded)
			if err != nil {
				t.Fatalf("DecodeServer() error = %v", err)
			}

			want := tt.msg
			if del, ok := want.(ServerMessageDelivery); ok && del.Payload == nil {
				want = ServerMessageDelivery{SubscriptionID: del.SubscriptionID, Subject: del.Subject, Payload: []byte{}}
			}
			if resp, ok := want.(ServerResponse); ok && resp.Payload == nil {
				want = ServerResponse{RequestID: resp.RequestID, Payload: []byte{}}
			}

			if !reflect.DeepEqual(decoded, want) {
				t.Errorf("round trip mismatch: got %#v, want %#v", decoded, want)
			}
		})
	}
}

func TestDecodeClient_LargePayload(t *testing.T) {
	payload := make([]byte, 10000)
	for i := range payload {
		payload[i] = byte(i % 256)
	}

	msg := ClientPublish{Subject: "large.message", Payload: payload}
	encoded := EncodeClient(msg)
	decoded, err := DecodeClient(encoded)
	if err != nil {
		t.Fatalf("DecodeClient() error = %v", err)
	}

	got, ok := decoded.(ClientPublish)
	if !ok {
		t.Fatalf("decoded to wrong type %T", decoded)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Error("payload mismatch after round trip")
	}
}

func TestDecodeClient_UnknownDiscriminant(t *testing.T) {
	frame := []byte{ProtocolVersion, 0xFF}
	if _, err := DecodeClient(frame); err == nil {
		t.Error("expected error for unknown discriminant")
	}
}

func TestDecodeClient_EmptyData(t *testing.T) {
	if _, err := DecodeClient(nil); err == nil {
		t.Error("expected error for empty frame")
	}
}

func TestDecodeClient_TruncatedBuffer(t *testing.T) {
	encoded := EncodeClient(ClientSubscribe{Subject: "test", ID: 1})
	truncated := encoded[:len(encoded)-2]
	if _, err := DecodeClient(truncated); err == nil {
		t.Error("expected error for truncated buffer")
	}
}

func TestDecodeClient_TrailingBytes(t *testing.T) {
	encoded := EncodeClient(ClientPing{})
	withTrailer := append(encoded, 0x00, 0x01)
	if _, err := DecodeClient(withTrailer); err == nil {
		t.Error("expected error for trailing bytes")
	}
}

func TestDecodeClient_InvalidUTF8(t *testing.T) {
	w := newWriter()
	w.u8(ProtocolVersion)
	w.u8(0) // Auth discriminant
	w.u32(4)
	w.buf = append(w.buf, 0xFF, 0xFE, 0xFD, 0xFC)

	if _, err := DecodeClient(w.buf); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}

// P2: decoding any frame whose first byte differs from the current version fails.
func TestDecodeClient_VersionMismatch(t *testing.T) {
	encoded := EncodeClient(ClientPing{})
	encoded[0] = ProtocolVersion + 1
	if _, err := DecodeClient(encoded); err == nil {
		t.Error("expected error for version mismatch")
	}
}

func TestFingerprint_Stable(t *testing.T) {
	a := Fingerprint()
	b := Fingerprint()
	if a != b {
		t.Errorf("Fingerprint() not stable: %d != %d", a, b)
	}
}
