package seal

import (
	"bytes"
	"errors"
	"testing"

	"linkmesh/pkg/protocol"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

func header(seq uint64) protocol.CommonHeader {
	return protocol.CommonHeader{
		MessageType:     protocol.MessageTypeData,
		ProtocolVersion: 1,
		SessionID:       "S",
		SequenceNo:      seq,
		Timestamp:       42,
	}
}

func TestMACPeerVerifies(t *testing.T) {
	ini, err := NewMACSession("S", secret, RoleInitiator)
	if err != nil {
		t.Fatalf("initiator: %v", err)
	}
	res, err := NewMACSession("S", secret, RoleResponder)
	if err != nil {
		t.Fatalf("responder: %v", err)
	}
	tag := ini.CreateMAC(header(1), []byte("payload"))
	if err := res.VerifyMAC(header(1), []byte("payload"), tag); err != nil {
		t.Fatalf("verify: %v", err)
	}
	// own direction must not verify
	if err := ini.VerifyMAC(header(1), []byte("payload"), tag); !errors.Is(err, ErrInvalidMAC) {
		t.Fatalf("reflected tag accepted: %v", err)
	}
	if err := res.VerifyMAC(header(2), []byte("payload"), tag); !errors.Is(err, ErrInvalidMAC) {
		t.Fatalf("header not bound: %v", err)
	}
	if err := res.VerifyMAC(header(1), []byte("payloaD"), tag); !errors.Is(err, ErrInvalidMAC) {
		t.Fatalf("payload not bound: %v", err)
	}
}

func TestAEADRoundTrip(t *testing.T) {
	ini, err := NewAEADSession("S", secret, RoleInitiator)
	if err != nil {
		t.Fatalf("initiator: %v", err)
	}
	res, err := NewAEADSession("S", secret, RoleResponder)
	if err != nil {
		t.Fatalf("responder: %v", err)
	}
	ct, tag, err := res.Encrypt(header(9), []byte("ack"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(ct, []byte("ack")) {
		t.Fatalf("ciphertext leaks plaintext")
	}
	pt, err := ini.Decrypt(header(9), ct, tag)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(pt) != "ack" {
		t.Fatalf("plaintext mismatch: %q", pt)
	}
	if _, err := ini.Decrypt(header(10), ct, tag); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("header not bound: %v", err)
	}
	if _, err := ini.Decrypt(header(9), ct, tag[:4]); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("short tag accepted: %v", err)
	}
}

func TestSessionsIsolatedByID(t *testing.T) {
	a, _ := NewAEADSession("S1", secret, RoleInitiator)
	b, _ := NewAEADSession("S2", secret, RoleResponder)
	ct, tag, _ := a.Encrypt(header(1), []byte("x"))
	if _, err := b.Decrypt(header(1), ct, tag); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("cross-session decrypt succeeded")
	}
}

func TestEmptySecret(t *testing.T) {
	if _, err := NewMACSession("S", nil, RoleInitiator); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNonceVariesWithSequence(t *testing.T) {
	var iv [ivSize]byte
	if nonceFor(iv, 1) == nonceFor(iv, 2) {
		t.Fatalf("nonce repeated")
	}
}
