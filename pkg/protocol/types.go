package protocol

import "strings"

// Content types, re-exported for callers that only import protocol.
const (
	ContentUnknown = "application/octet-stream"
	ContentCBOR    = "application/cbor"
	ContentJSON    = "application/json"
)

// Identity is a holding identity: an x500-style name within a group.
type Identity struct {
	Name  string `json:"name"`
	Group string `json:"group"`
}

func (i Identity) String() string {
	if i.Group == "" {
		return i.Name
	}
	return i.Name + "@" + i.Group
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool { return strings.TrimSpace(i.Name) == "" && i.Group == "" }

// MessageType tags a CommonHeader with the step of the protocol it belongs to.
type MessageType uint8

const (
	MessageTypeUnknown MessageType = iota
	MessageTypeInitiatorHello
	MessageTypeResponderHello
	MessageTypeInitiatorHandshake
	MessageTypeResponderHandshake
	MessageTypeData
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeInitiatorHello:
		return "initiator_hello"
	case MessageTypeResponderHello:
		return "responder_hello"
	case MessageTypeInitiatorHandshake:
		return "initiator_handshake"
	case MessageTypeResponderHandshake:
		return "responder_handshake"
	case MessageTypeData:
		return "data"
	default:
		return "unknown"
	}
}

// PayloadKind names a concrete payload on the wire.
type PayloadKind string

const (
	KindInitiatorHello             PayloadKind = "initiator_hello"
	KindResponderHello             PayloadKind = "responder_hello"
	KindInitiatorHandshake         PayloadKind = "initiator_handshake"
	KindResponderHandshake         PayloadKind = "responder_handshake"
	KindAuthenticatedData          PayloadKind = "authenticated_data"
	KindAuthenticatedEncryptedData PayloadKind = "authenticated_encrypted_data"
	KindUnauthenticated            PayloadKind = "unauthenticated"
	KindHeartbeat                  PayloadKind = "heartbeat"
	KindAuthenticatedMessageAndKey PayloadKind = "authenticated_message_and_key"
	KindAuthenticatedMessageAck    PayloadKind = "authenticated_message_ack"
	KindHeartbeatMessageAck        PayloadKind = "heartbeat_message_ack"
)

// Payload is anything that can travel as the body of a link message.
type Payload interface {
	Kind() PayloadKind
}
