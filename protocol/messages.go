// Package protocol implements the gateway's versioned binary wire format:
// encode/decode of ClientMessage and ServerMessage tagged unions.
//
// The layout is a fixed-width, length-prefixed format rather than the
// ad-hoc varint codec the reference gateway once used: every frame opens
// with a one-byte protocol version, followed by a one-byte discriminant and
// then the variant's fields in declaration order. The codec is pure; it
// never touches I/O and never allocates more than the decoded values
// require.
package protocol

// ProtocolVersion is the wire version this codec speaks. A receiver MUST
// reject any frame whose version byte differs.
const ProtocolVersion uint8 = 1

// MaxFrameSize bounds the size of any single encoded frame, including the
// version byte. Decode rejects any length-prefixed field that would push
// the frame past this cap before materializing it.
const MaxFrameSize = 16 * 1024 * 1024

// ClientMessage is the closed sum of messages a client may send.
type ClientMessage interface {
	clientDiscriminant() uint8
}

// ClientAuth authenticates the session with a signed token.
type ClientAuth struct {
	Token string
}

// ClientSubscribe opens a subscription on subject under a client-chosen id.
type ClientSubscribe struct {
	Subject string
	ID      uint64
}

// ClientUnsubscribe closes a previously opened subscription.
type ClientUnsubscribe struct {
	ID uint64
}

// ClientPublish fires a message at subject.
type ClientPublish struct {
	Subject string
	Payload []byte
}

// ClientRequest performs a request-reply call correlated by RequestID.
type ClientRequest struct {
	Subject   string
	Payload   []byte
	TimeoutMs uint32
	RequestID uint64
}

// ClientPing is a keepalive probe.
type ClientPing struct{}

func (ClientAuth) clientDiscriminant() uint8        { return 0 }
func (ClientSubscribe) clientDiscriminant() uint8   { return 1 }
func (ClientUnsubscribe) clientDiscriminant() uint8 { return 2 }
func (ClientPublish) clientDiscriminant() uint8     { return 3 }
func (ClientRequest) clientDiscriminant() uint8     { return 4 }
func (ClientPing) clientDiscriminant() uint8        { return 5 }

// ServerMessage is the closed sum of messages the gateway may send.
type ServerMessage interface {
	serverDiscriminant() uint8
}

// ServerAuthOk confirms authentication and assigns a session id.
type ServerAuthOk struct {
	SessionID string
}

// ServerAuthError reports a failed authentication attempt.
type ServerAuthError struct {
	Reason string
}

// ServerSubscribeOk confirms a subscription.
type ServerSubscribeOk struct {
	ID uint64
}

// ServerSubscribeError reports a failed subscription attempt.
type ServerSubscribeError struct {
	ID     uint64
	Reason string
}

// ServerMessageDelivery carries a bus-delivered message to a subscription.
type ServerMessageDelivery struct {
	SubscriptionID uint64
	Subject        string
	Payload        []byte
}

// ServerResponse carries the reply to a Request.
type ServerResponse struct {
	RequestID uint64
	Payload   []byte
}

// ServerRequestError reports that a Request could not be completed.
type ServerRequestError struct {
	RequestID uint64
	Reason    string
}

// ServerError is a generic, session-level error.
type ServerError struct {
	Code    uint32
	Message string
}

// ServerPong answers a ClientPing.
type ServerPong struct{}

func (ServerAuthOk) serverDiscriminant() uint8          { return 0 }
func (ServerAuthError) serverDiscriminant() uint8       { return 1 }
func (ServerSubscribeOk) serverDiscriminant() uint8     { return 2 }
func (ServerSubscribeError) serverDiscriminant() uint8  { return 3 }
func (ServerMessageDelivery) serverDiscriminant() uint8 { return 4 }
func (ServerResponse) serverDiscriminant() uint8        { return 5 }
func (ServerRequestError) serverDiscriminant() uint8    { return 6 }
func (ServerError) serverDiscriminant() uint8           { return 7 }
func (ServerPong) serverDiscriminant() uint8            { return 8 }

// Error codes used by ServerError.Code.
const (
	CodeInvalidMessage  uint32 = 400
	CodeUnauthorized    uint32 = 401
	CodeForbidden       uint32 = 403
	CodeNotFound        uint32 = 404
	CodeInternalError   uint32 = 500
	CodeServiceUnavail  uint32 = 503
)
