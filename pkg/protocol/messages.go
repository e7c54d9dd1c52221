package protocol

// SignedHello binds an ed25519 public key to a holding identity, a fresh
// nonce and a timestamp. Sig covers sign.HelloTranscript.
type SignedHello struct {
	Version   uint32 `json:"ver,omitempty"`
	Name      string `json:"name"`
	Group     string `json:"group,omitempty"`
	Alg       string `json:"alg"`
	PubKey    []byte `json:"pubkey"`
	Nonce     []byte `json:"nonce"`
	Timestamp int64  `json:"ts_unix_ms"`
	Sig       []byte `json:"sig"`
}

// InitiatorHello opens a session.
type InitiatorHello struct {
	Header      CommonHeader `json:"header"`
	Source      Identity     `json:"source"`
	Destination Identity     `json:"destination"`
	Hello       SignedHello  `json:"hello"`
}

// ResponderHello answers an InitiatorHello.
type ResponderHello struct {
	Header CommonHeader `json:"header"`
	Hello  SignedHello  `json:"hello"`
}

// InitiatorHandshake carries the initiator's sealed handshake step.
type InitiatorHandshake struct {
	Header        CommonHeader `json:"header"`
	EncryptedData []byte       `json:"encrypted_data"`
	AuthTag       []byte       `json:"auth_tag"`
}

// ResponderHandshake carries the responder's sealed handshake step.
type ResponderHandshake struct {
	Header        CommonHeader `json:"header"`
	EncryptedData []byte       `json:"encrypted_data"`
	AuthTag       []byte       `json:"auth_tag"`
}

// AuthenticatedDataMessage is a cleartext session payload with a MAC.
type AuthenticatedDataMessage struct {
	Header  CommonHeader `json:"header"`
	Payload []byte       `json:"payload"`
	AuthTag []byte       `json:"auth_tag"`
}

// AuthenticatedEncryptedDataMessage is an AEAD-sealed session payload.
type AuthenticatedEncryptedDataMessage struct {
	Header           CommonHeader `json:"header"`
	EncryptedPayload []byte       `json:"encrypted_payload"`
	AuthTag          []byte       `json:"auth_tag"`
}

// UnauthenticatedMessage is an application message that needs no session.
type UnauthenticatedMessage struct {
	Header  UnauthenticatedHeader `json:"header"`
	Payload []byte                `json:"payload"`
}

func (*InitiatorHello) Kind() PayloadKind     { return KindInitiatorHello }
func (*ResponderHello) Kind() PayloadKind     { return KindResponderHello }
func (*InitiatorHandshake) Kind() PayloadKind { return KindInitiatorHandshake }
func (*ResponderHandshake) Kind() PayloadKind { return KindResponderHandshake }
func (*AuthenticatedDataMessage) Kind() PayloadKind {
	return KindAuthenticatedData
}
func (*AuthenticatedEncryptedDataMessage) Kind() PayloadKind {
	return KindAuthenticatedEncryptedData
}
func (*UnauthenticatedMessage) Kind() PayloadKind { return KindUnauthenticated }

// SessionHeader returns the common header of session-bound payloads.
func SessionHeader(p Payload) (CommonHeader, bool) {
	switch m := p.(type) {
	case *InitiatorHello:
		return m.Header, true
	case *ResponderHello:
		return m.Header, true
	case *InitiatorHandshake:
		return m.Header, true
	case *ResponderHandshake:
		return m.Header, true
	case *AuthenticatedDataMessage:
		return m.Header, true
	case *AuthenticatedEncryptedDataMessage:
		return m.Header, true
	default:
		return CommonHeader{}, false
	}
}

// LinkInMessage is a message received from the wire. Treat it as immutable.
type LinkInMessage struct {
	Payload Payload
}

// LinkOutMessage is a message to be sent to a peer.
type LinkOutMessage struct {
	Header  LinkOutHeader
	Payload Payload
}

// LinkManagerResponse is the synchronous reply to a link.in delivery.
// A nil Payload is the empty reply.
type LinkManagerResponse struct {
	Payload Payload
}

// Empty reports whether the response carries nothing.
func (r *LinkManagerResponse) Empty() bool { return r == nil || r.Payload == nil }

// DataMessagePayload is the decoded content of a session data message
// sent to the session's responder.
type DataMessagePayload interface {
	Payload
	isDataMessagePayload()
}

// HeartbeatMessage keeps a session alive.
type HeartbeatMessage struct {
	MessageID string `json:"message_id"`
}

// AuthenticatedMessageHeader addresses an authenticated application message.
type AuthenticatedMessageHeader struct {
	Destination Identity `json:"destination"`
	Source      Identity `json:"source"`
	// TTL is an absolute expiry in unix milliseconds, 0 for none.
	TTL       int64  `json:"ttl,omitempty"`
	MessageID string `json:"message_id"`
	TraceID   string `json:"trace_id,omitempty"`
	Subsystem string `json:"subsystem"`
}

// AuthenticatedMessage is an application message carried inside a session.
type AuthenticatedMessage struct {
	Header  AuthenticatedMessageHeader `json:"header"`
	Payload []byte                     `json:"payload"`
}

// Key is the natural record key of the message.
func (m *AuthenticatedMessage) Key() string { return m.Header.MessageID }

// AuthenticatedMessageAndKey pairs a message with its bus key.
type AuthenticatedMessageAndKey struct {
	Message AuthenticatedMessage `json:"message"`
	Key     string               `json:"key"`
}

func (*HeartbeatMessage) Kind() PayloadKind { return KindHeartbeat }
func (*AuthenticatedMessageAndKey) Kind() PayloadKind {
	return KindAuthenticatedMessageAndKey
}
func (*HeartbeatMessage) isDataMessagePayload()           {}
func (*AuthenticatedMessageAndKey) isDataMessagePayload() {}

// MessageAck is the decoded content of a session data message sent back to
// the session's initiator.
type MessageAck interface {
	Payload
	AckedMessageID() string
}

// AuthenticatedMessageAck acknowledges an AuthenticatedMessage.
type AuthenticatedMessageAck struct {
	MessageID string `json:"message_id"`
}

// HeartbeatMessageAck acknowledges a HeartbeatMessage.
type HeartbeatMessageAck struct {
	MessageID string `json:"message_id"`
}

func (*AuthenticatedMessageAck) Kind() PayloadKind { return KindAuthenticatedMessageAck }
func (*HeartbeatMessageAck) Kind() PayloadKind     { return KindHeartbeatMessageAck }
func (a *AuthenticatedMessageAck) AckedMessageID() string {
	return a.MessageID
}
func (a *HeartbeatMessageAck) AckedMessageID() string { return a.MessageID }

// AppMessage is what gets delivered on the application inbound topic.
// Exactly one field is set.
type AppMessage struct {
	Authenticated   *AuthenticatedMessage   `json:"authenticated,omitempty"`
	Unauthenticated *UnauthenticatedMessage `json:"unauthenticated,omitempty"`
}

// MessageID returns the id of whichever message is set.
func (m *AppMessage) MessageID() string {
	switch {
	case m.Authenticated != nil:
		return m.Authenticated.Header.MessageID
	case m.Unauthenticated != nil:
		return m.Unauthenticated.Header.MessageID
	}
	return ""
}

// MarkerKind names a delivery marker.
type MarkerKind string

// LinkManagerReceivedMarker records that the peer acknowledged a message.
const LinkManagerReceivedMarker MarkerKind = "link_manager_received"

// AppMessageMarker is published on the markers topic. Timestamp is unix milliseconds.
type AppMessageMarker struct {
	Marker    MarkerKind `json:"marker"`
	MessageID string     `json:"message_id"`
	Timestamp int64      `json:"timestamp"`
}

// SessionPartitions advertises which partitions may carry a session's traffic.
type SessionPartitions struct {
	Partitions []int32 `json:"partitions"`
}
