package handshake

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"go.uber.org/zap"

	"linkmesh/pkg/protocol"
)

func newKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, pk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	return pk
}

func TestBuildVerifyHello(t *testing.T) {
	pk := newKey(t)
	now := time.Unix(1_700_000_000, 0)
	h, err := BuildHello(protocol.Identity{Name: "A", Group: "g"}, "S", pk, now)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := VerifyHello(h, "S", time.Minute, now); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := VerifyHello(h, "other", time.Minute, now); err == nil {
		t.Fatalf("hello replayed on another session verified")
	}
	if _, err := VerifyHello(h, "S", time.Minute, now.Add(time.Hour)); err == nil {
		t.Fatalf("stale hello verified")
	}
	h.Name = "mallory"
	if _, err := VerifyHello(h, "S", time.Minute, now); err == nil {
		t.Fatalf("tampered hello verified")
	}
}

func TestResponderAnswersHello(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	alice := protocol.Identity{Name: "A", Group: "g"}
	bob := protocol.Identity{Name: "B", Group: "g"}
	r := NewResponder(bob, newKey(t), WithLogger(zap.NewNop()), WithClock(clock))

	ih, err := BuildHello(alice, "S", newKey(t), now)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	in := &protocol.LinkInMessage{Payload: &protocol.InitiatorHello{
		Header:      protocol.CommonHeader{MessageType: protocol.MessageTypeInitiatorHello, ProtocolVersion: 1, SessionID: "S"},
		Source:      alice,
		Destination: bob,
		Hello:       ih,
	}}
	out := r.ProcessSessionMessage(context.Background(), in)
	if out == nil {
		t.Fatalf("expected reply")
	}
	if out.Header.Destination != alice || out.Header.Source != bob {
		t.Fatalf("reply addressed wrongly: %+v", out.Header)
	}
	rh, ok := out.Payload.(*protocol.ResponderHello)
	if !ok {
		t.Fatalf("unexpected payload %T", out.Payload)
	}
	if rh.Header.SessionID != "S" || rh.Header.MessageType != protocol.MessageTypeResponderHello {
		t.Fatalf("reply header: %+v", rh.Header)
	}
	if _, err := VerifyHello(rh.Hello, "S", time.Minute, now); err != nil {
		t.Fatalf("responder hello does not verify: %v", err)
	}
}

func TestResponderIgnoresOtherSteps(t *testing.T) {
	r := NewResponder(protocol.Identity{Name: "B"}, newKey(t), WithLogger(zap.NewNop()))
	for _, p := range []protocol.Payload{
		&protocol.ResponderHello{},
		&protocol.InitiatorHandshake{},
		&protocol.ResponderHandshake{},
		nil,
	} {
		if out := r.ProcessSessionMessage(context.Background(), &protocol.LinkInMessage{Payload: p}); out != nil {
			t.Fatalf("unexpected reply for %T", p)
		}
	}
}

func TestResponderRejectsMisaddressedHello(t *testing.T) {
	now := time.Now()
	r := NewResponder(protocol.Identity{Name: "B"}, newKey(t), WithLogger(zap.NewNop()))
	ih, _ := BuildHello(protocol.Identity{Name: "A"}, "S", newKey(t), now)
	out := r.ProcessSessionMessage(context.Background(), &protocol.LinkInMessage{Payload: &protocol.InitiatorHello{
		Header:      protocol.CommonHeader{SessionID: "S"},
		Source:      protocol.Identity{Name: "A"},
		Destination: protocol.Identity{Name: "C"},
		Hello:       ih,
	}})
	if out != nil {
		t.Fatalf("misaddressed hello answered")
	}
}
