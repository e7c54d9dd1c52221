package protocol

import (
	"bytes"
	"errors"
	"testing"

	"linkmesh/pkg/protocol/codec"
)

func newWires(t *testing.T) map[string]*Wire {
	t.Helper()
	reg := codec.MustRegistry()
	out := make(map[string]*Wire)
	for name, f := range map[string]Format{"json": FormatJSON, "cbor": FormatCBOR} {
		w, err := NewWire(reg, f)
		if err != nil {
			t.Fatalf("wire %s: %v", name, err)
		}
		out[name] = w
	}
	return out
}

func sampleHeader() CommonHeader {
	return CommonHeader{
		MessageType:     MessageTypeData,
		ProtocolVersion: 1,
		SessionID:       "S",
		SequenceNo:      7,
		Timestamp:       1700000000000,
	}
}

func TestNewWireRejectsUnknownFormat(t *testing.T) {
	if _, err := NewWire(codec.MustRegistry(), FormatUnknown); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if _, err := ParseFormat("proto"); err == nil {
		t.Fatalf("expected error for proto format name")
	}
}

func TestLinkInRoundTrip(t *testing.T) {
	payloads := []Payload{
		&InitiatorHello{Header: sampleHeader(), Source: Identity{Name: "A"}, Destination: Identity{Name: "B"},
			Hello: SignedHello{Alg: "ed25519", PubKey: []byte{1, 2}, Nonce: []byte{3}, Sig: []byte{4}}},
		&AuthenticatedDataMessage{Header: sampleHeader(), Payload: []byte("p"), AuthTag: []byte("t")},
		&AuthenticatedEncryptedDataMessage{Header: sampleHeader(), EncryptedPayload: []byte("c"), AuthTag: []byte("t")},
		&UnauthenticatedMessage{Header: UnauthenticatedHeader{MessageID: "M", Subsystem: "flow"}, Payload: []byte("x")},
		&ResponderHandshake{Header: sampleHeader(), EncryptedData: []byte{9}},
	}
	for name, w := range newWires(t) {
		for _, p := range payloads {
			b, err := w.EncodeLinkIn(&LinkInMessage{Payload: p})
			if err != nil {
				t.Fatalf("%s encode %s: %v", name, p.Kind(), err)
			}
			got, err := w.DecodeLinkIn(b)
			if err != nil {
				t.Fatalf("%s decode %s: %v", name, p.Kind(), err)
			}
			if got.Payload == nil || got.Payload.Kind() != p.Kind() {
				t.Fatalf("%s kind mismatch: %+v", name, got.Payload)
			}
			h1, _ := SessionHeader(p)
			h2, _ := SessionHeader(got.Payload)
			if h1 != h2 {
				t.Fatalf("%s header mismatch: %+v vs %+v", name, h1, h2)
			}
		}
	}
}

func TestLinkInNilPayload(t *testing.T) {
	w := newWires(t)["cbor"]
	b, err := w.EncodeLinkIn(&LinkInMessage{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := w.DecodeLinkIn(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Payload != nil {
		t.Fatalf("expected nil payload, got %T", got.Payload)
	}
}

func TestLinkInRejectsForeignKinds(t *testing.T) {
	w := newWires(t)["json"]
	_, err := w.EncodeLinkIn(&LinkInMessage{Payload: &HeartbeatMessage{MessageID: "h"}})
	if !errors.Is(err, ErrUnknownPayload) {
		t.Fatalf("want ErrUnknownPayload, got %v", err)
	}
	frame, err := EncodeBody(codec.MustRegistry(), FormatJSON, wirePair{Kind: "bogus", Body: []byte("{}")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := w.DecodeLinkIn(frame); !errors.Is(err, ErrUnknownPayload) {
		t.Fatalf("want ErrUnknownPayload, got %v", err)
	}
}

func TestCrossFormatDecode(t *testing.T) {
	ws := newWires(t)
	b, err := ws["json"].EncodeAck(&AuthenticatedMessageAck{MessageID: "M1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	a, err := ws["cbor"].DecodeAck(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.AckedMessageID() != "M1" || a.Kind() != KindAuthenticatedMessageAck {
		t.Fatalf("ack mismatch: %+v", a)
	}
}

func TestDataPayloadRoundTrip(t *testing.T) {
	w := newWires(t)["cbor"]
	in := &AuthenticatedMessageAndKey{
		Key: "k",
		Message: AuthenticatedMessage{
			Header: AuthenticatedMessageHeader{
				Source:      Identity{Name: "A", Group: "g"},
				Destination: Identity{Name: "B", Group: "g"},
				MessageID:   "M1",
				Subsystem:   "flow",
			},
			Payload: []byte("hello"),
		},
	}
	b, err := w.EncodeDataPayload(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := w.DecodeDataPayload(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	mk, ok := got.(*AuthenticatedMessageAndKey)
	if !ok {
		t.Fatalf("unexpected type %T", got)
	}
	if mk.Message.Header != in.Message.Header || !bytes.Equal(mk.Message.Payload, in.Message.Payload) {
		t.Fatalf("mismatch: %+v", mk)
	}

	if _, err := w.DecodeAck(b); !errors.Is(err, ErrUnknownPayload) {
		t.Fatalf("data payload must not decode as ack: %v", err)
	}
	if _, err := w.DecodeDataPayload([]byte{byte(FormatCBOR), 0xff}); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}

func TestLinkOutRoundTrip(t *testing.T) {
	w := newWires(t)["cbor"]
	in := &LinkOutMessage{
		Header:  LinkOutHeader{Source: Identity{Name: "B"}, Destination: Identity{Name: "A"}},
		Payload: &ResponderHello{Header: sampleHeader()},
	}
	b, err := w.EncodeLinkOut(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := w.DecodeLinkOut(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Header != in.Header || got.Payload.Kind() != KindResponderHello {
		t.Fatalf("mismatch: %+v", got)
	}
	if _, err := w.EncodeLinkOut(&LinkOutMessage{}); err == nil {
		t.Fatalf("expected error for empty link out")
	}
}

func TestResponseEmpty(t *testing.T) {
	w := newWires(t)["json"]
	b, err := w.EncodeResponse(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	r, err := w.DecodeResponse(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !r.Empty() {
		t.Fatalf("expected empty response")
	}
}

func TestCommonHeaderAAD(t *testing.T) {
	h := sampleHeader()
	a1 := h.AAD()
	a2 := sampleHeader().AAD()
	if !bytes.Equal(a1, a2) {
		t.Fatalf("AAD not deterministic")
	}
	h.SequenceNo++
	if bytes.Equal(a1, h.AAD()) {
		t.Fatalf("AAD must change with sequence number")
	}
	h = sampleHeader()
	h.SessionID = "T"
	if bytes.Equal(a1, h.AAD()) {
		t.Fatalf("AAD must change with session id")
	}
}
