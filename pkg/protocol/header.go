package protocol

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// CommonHeader accompanies every session-bound message and is bound into its
// MAC/AEAD tag. Apart from that binding its fields are passed through untouched.
type CommonHeader struct {
	MessageType     MessageType `json:"message_type"`
	ProtocolVersion uint32      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	SequenceNo      uint64      `json:"sequence_no"`
	Timestamp       int64       `json:"timestamp"`
	FragIndex       uint32      `json:"frag_index,omitempty"`
	FragTotal       uint32      `json:"frag_total,omitempty"`
}

// AAD field numbers.
const (
	aadMessageType protowire.Number = iota + 1
	aadProtocolVersion
	aadSessionID
	aadSequenceNo
	aadTimestamp
	aadFragIndex
	aadFragTotal
)

// AAD returns the deterministic byte encoding of the header used as
// additional authenticated data. Every field is always emitted in field-number
// order so two equal headers produce identical bytes.
func (h CommonHeader) AAD() []byte {
	b := make([]byte, 0, 32+len(h.SessionID))
	b = protowire.AppendTag(b, aadMessageType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.MessageType))
	b = protowire.AppendTag(b, aadProtocolVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.ProtocolVersion))
	b = protowire.AppendTag(b, aadSessionID, protowire.BytesType)
	b = protowire.AppendString(b, h.SessionID)
	b = protowire.AppendTag(b, aadSequenceNo, protowire.VarintType)
	b = protowire.AppendVarint(b, h.SequenceNo)
	b = protowire.AppendTag(b, aadTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(h.Timestamp))
	b = protowire.AppendTag(b, aadFragIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.FragIndex))
	b = protowire.AppendTag(b, aadFragTotal, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.FragTotal))
	return b
}

// UnauthenticatedHeader addresses a message that travels without a session.
type UnauthenticatedHeader struct {
	Destination Identity `json:"destination"`
	Source      Identity `json:"source"`
	Subsystem   string   `json:"subsystem"`
	MessageID   string   `json:"message_id"`
}

// LinkOutHeader addresses an outbound link message.
type LinkOutHeader struct {
	Destination Identity `json:"destination"`
	Source      Identity `json:"source"`
	// Address is a transport hint; empty lets the outbound path resolve it.
	Address string `json:"address,omitempty"`
}
