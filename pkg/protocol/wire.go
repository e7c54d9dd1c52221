package protocol

import (
	"errors"
	"fmt"

	"linkmesh/pkg/protocol/codec"
)

// ErrUnknownPayload is returned for a payload kind that is not valid in the
// position it was found.
var ErrUnknownPayload = errors.New("protocol: unknown payload kind")

// wirePair carries a payload union as its kind plus the codec bytes of the
// concrete value, so it survives any self-describing codec.
type wirePair struct {
	Kind PayloadKind `json:"kind,omitempty"`
	Body []byte      `json:"body,omitempty"`
}

type linkOutWire struct {
	Header  LinkOutHeader `json:"header"`
	Payload wirePair      `json:"payload"`
}

type payloadSet map[PayloadKind]func() Payload

var (
	linkPayloads = payloadSet{
		KindInitiatorHello:             func() Payload { return new(InitiatorHello) },
		KindResponderHello:             func() Payload { return new(ResponderHello) },
		KindInitiatorHandshake:         func() Payload { return new(InitiatorHandshake) },
		KindResponderHandshake:         func() Payload { return new(ResponderHandshake) },
		KindAuthenticatedData:          func() Payload { return new(AuthenticatedDataMessage) },
		KindAuthenticatedEncryptedData: func() Payload { return new(AuthenticatedEncryptedDataMessage) },
		KindUnauthenticated:            func() Payload { return new(UnauthenticatedMessage) },
	}
	dataPayloads = payloadSet{
		KindHeartbeat:                  func() Payload { return new(HeartbeatMessage) },
		KindAuthenticatedMessageAndKey: func() Payload { return new(AuthenticatedMessageAndKey) },
	}
	ackPayloads = payloadSet{
		KindAuthenticatedMessageAck: func() Payload { return new(AuthenticatedMessageAck) },
		KindHeartbeatMessageAck:     func() Payload { return new(HeartbeatMessageAck) },
	}
)

// Wire encodes link messages as format-prefixed frames. Decoding honours the
// format byte of the input, so a Wire reads every format it can write.
type Wire struct {
	reg    *codec.Registry
	format Format
}

// NewWire returns a Wire that writes with format f.
func NewWire(reg *codec.Registry, f Format) (*Wire, error) {
	if _, err := CodecFor(reg, f); err != nil {
		return nil, err
	}
	return &Wire{reg: reg, format: f}, nil
}

// Format returns the encoding used for writing.
func (w *Wire) Format() Format { return w.format }

func (w *Wire) pack(c codec.Codec, p Payload, known payloadSet) (wirePair, error) {
	if p == nil {
		return wirePair{}, nil
	}
	if _, ok := known[p.Kind()]; !ok {
		return wirePair{}, fmt.Errorf("%w: %q", ErrUnknownPayload, p.Kind())
	}
	body, err := c.Marshal(p)
	if err != nil {
		return wirePair{}, fmt.Errorf("encode %s: %w", p.Kind(), err)
	}
	return wirePair{Kind: p.Kind(), Body: body}, nil
}

func unpack(c codec.Codec, wp wirePair, known payloadSet) (Payload, error) {
	if wp.Kind == "" {
		return nil, nil
	}
	mk, ok := known[wp.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPayload, wp.Kind)
	}
	p := mk()
	if err := c.Unmarshal(wp.Body, p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", wp.Kind, err)
	}
	return p, nil
}

func (w *Wire) encodePair(p Payload, known payloadSet) ([]byte, error) {
	c, err := CodecFor(w.reg, w.format)
	if err != nil {
		return nil, err
	}
	wp, err := w.pack(c, p, known)
	if err != nil {
		return nil, err
	}
	return EncodeBody(w.reg, w.format, wp)
}

func (w *Wire) decodePair(b []byte, known payloadSet) (Payload, error) {
	var wp wirePair
	f, err := DecodeBody(w.reg, b, &wp)
	if err != nil {
		return nil, err
	}
	c, err := CodecFor(w.reg, f)
	if err != nil {
		return nil, err
	}
	return unpack(c, wp, known)
}

// EncodeLinkIn encodes a LinkInMessage. A nil payload encodes as an empty union.
func (w *Wire) EncodeLinkIn(m *LinkInMessage) ([]byte, error) {
	if m == nil {
		m = &LinkInMessage{}
	}
	return w.encodePair(m.Payload, linkPayloads)
}

// DecodeLinkIn decodes a LinkInMessage. An empty union yields a message with
// a nil Payload.
func (w *Wire) DecodeLinkIn(b []byte) (*LinkInMessage, error) {
	p, err := w.decodePair(b, linkPayloads)
	if err != nil {
		return nil, err
	}
	return &LinkInMessage{Payload: p}, nil
}

// EncodeResponse encodes a LinkManagerResponse; nil encodes as the empty reply.
func (w *Wire) EncodeResponse(r *LinkManagerResponse) ([]byte, error) {
	if r == nil {
		r = &LinkManagerResponse{}
	}
	return w.encodePair(r.Payload, linkPayloads)
}

// DecodeResponse decodes a LinkManagerResponse.
func (w *Wire) DecodeResponse(b []byte) (*LinkManagerResponse, error) {
	p, err := w.decodePair(b, linkPayloads)
	if err != nil {
		return nil, err
	}
	return &LinkManagerResponse{Payload: p}, nil
}

// EncodeLinkOut encodes a LinkOutMessage.
func (w *Wire) EncodeLinkOut(m *LinkOutMessage) ([]byte, error) {
	if m == nil || m.Payload == nil {
		return nil, fmt.Errorf("%w: link out message without payload", ErrUnknownPayload)
	}
	c, err := CodecFor(w.reg, w.format)
	if err != nil {
		return nil, err
	}
	wp, err := w.pack(c, m.Payload, linkPayloads)
	if err != nil {
		return nil, err
	}
	return EncodeBody(w.reg, w.format, linkOutWire{Header: m.Header, Payload: wp})
}

// DecodeLinkOut decodes a LinkOutMessage.
func (w *Wire) DecodeLinkOut(b []byte) (*LinkOutMessage, error) {
	var lw linkOutWire
	f, err := DecodeBody(w.reg, b, &lw)
	if err != nil {
		return nil, err
	}
	c, err := CodecFor(w.reg, f)
	if err != nil {
		return nil, err
	}
	p, err := unpack(c, lw.Payload, linkPayloads)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: link out message without payload", ErrUnknownPayload)
	}
	return &LinkOutMessage{Header: lw.Header, Payload: p}, nil
}

// EncodeDataPayload encodes the inner payload of a data message sent to a responder.
func (w *Wire) EncodeDataPayload(p DataMessagePayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil data payload", ErrUnknownPayload)
	}
	return w.encodePair(p, dataPayloads)
}

// DecodeDataPayload decodes the inner payload of a data message.
func (w *Wire) DecodeDataPayload(b []byte) (DataMessagePayload, error) {
	p, err := w.decodePair(b, dataPayloads)
	if err != nil {
		return nil, err
	}
	dp, ok := p.(DataMessagePayload)
	if !ok {
		return nil, fmt.Errorf("%w: empty data payload", ErrUnknownPayload)
	}
	return dp, nil
}

// EncodeAck encodes the inner payload of an acknowledgement.
func (w *Wire) EncodeAck(a MessageAck) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil ack", ErrUnknownPayload)
	}
	return w.encodePair(a, ackPayloads)
}

// DecodeAck decodes the inner payload of an acknowledgement.
func (w *Wire) DecodeAck(b []byte) (MessageAck, error) {
	p, err := w.decodePair(b, ackPayloads)
	if err != nil {
		return nil, err
	}
	a, ok := p.(MessageAck)
	if !ok {
		return nil, fmt.Errorf("%w: empty ack", ErrUnknownPayload)
	}
	return a, nil
}
