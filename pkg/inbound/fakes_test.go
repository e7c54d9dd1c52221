package inbound

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"linkmesh/pkg/crypto/seal"
	"linkmesh/pkg/protocol"
	"linkmesh/pkg/protocol/codec"
	"linkmesh/pkg/queue"
	"linkmesh/pkg/session"
)

var (
	alice = protocol.Identity{Name: "O=Alice, L=London, C=GB", Group: "g1"}
	bob   = protocol.Identity{Name: "O=Bob, L=Paris, C=FR", Group: "g1"}
	carol = protocol.Identity{Name: "O=Carol, L=Rome, C=IT", Group: "g1"}

	secret = []byte("0123456789abcdef0123456789abcdef")
)

// fakeSessions is a session.Manager backed by a map.
type fakeSessions struct {
	mu          sync.Mutex
	byID        map[string]session.Direction
	reply       *protocol.LinkOutMessage
	panicOn     protocol.PayloadKind
	processed   []*protocol.LinkInMessage
	acked       []string
	established []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byID: make(map[string]session.Direction)}
}

func (f *fakeSessions) GetSessionByID(id string) session.Direction {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.byID[id]; ok {
		return d
	}
	return session.NoSession{}
}

func (f *fakeSessions) ProcessSessionMessage(_ context.Context, msg *protocol.LinkInMessage) *protocol.LinkOutMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn != "" && msg.Payload.Kind() == f.panicOn {
		panic("session manager exploded")
	}
	f.processed = append(f.processed, msg)
	return f.reply
}

func (f *fakeSessions) MessageAcknowledged(id string) {
	f.mu.Lock()
	f.acked = append(f.acked, id)
	f.mu.Unlock()
}

func (f *fakeSessions) InboundSessionEstablished(id string, _ session.Counterparties) {
	f.mu.Lock()
	f.established = append(f.established, id)
	f.mu.Unlock()
}

// fakePublisher resolves every record immediately, failing those whose
// topic is in fail. With hang set, futures never resolve.
type fakePublisher struct {
	mu    sync.Mutex
	calls [][]Record
	fail  map[string]error
	hang  bool
}

func (p *fakePublisher) Publish(_ context.Context, recs []Record) []*queue.Future[struct{}] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, append([]Record(nil), recs...))
	out := make([]*queue.Future[struct{}], len(recs))
	for i, r := range recs {
		switch {
		case p.hang:
			out[i] = queue.NewPromise[struct{}]().Future()
		case p.fail[r.Topic] != nil:
			out[i] = queue.Resolved(queue.Err[struct{}](p.fail[r.Topic]))
		default:
			out[i] = queue.Resolved(queue.Ok(struct{}{}))
		}
	}
	return out
}

func (p *fakePublisher) published() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	var all []Record
	for _, c := range p.calls {
		all = append(all, c...)
	}
	return all
}

type bogusPayload struct{}

func (*bogusPayload) Kind() protocol.PayloadKind { return "bogus" }

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	proc     *Processor
	sessions *fakeSessions
	parts    *StaticAssignment
	wire     *protocol.Wire
	logs     *observer.ObservedLogs
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	wire, err := protocol.NewWire(codec.MustRegistry(), protocol.FormatCBOR)
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	core, logs := observer.New(zapcore.DebugLevel)
	opts.Logger = zap.New(core)
	h := &harness{
		sessions: newFakeSessions(),
		parts:    NewStaticAssignment(0, 3),
		wire:     wire,
		logs:     logs,
	}
	h.proc, err = NewProcessor(h.sessions, h.parts, ClockFunc(func() time.Time { return fixedNow }), wire, opts)
	if err != nil {
		t.Fatalf("processor: %v", err)
	}
	return h
}

func header(sessionID string, seq uint64) protocol.CommonHeader {
	return protocol.CommonHeader{
		MessageType:     protocol.MessageTypeData,
		ProtocolVersion: 1,
		SessionID:       sessionID,
		SequenceNo:      seq,
		Timestamp:       fixedNow.UnixMilli(),
		FragTotal:       1,
	}
}

func appMessage(id string, src, dst protocol.Identity) protocol.AuthenticatedMessage {
	return protocol.AuthenticatedMessage{
		Header: protocol.AuthenticatedMessageHeader{
			Destination: dst,
			Source:      src,
			MessageID:   id,
			Subsystem:   "flow",
		},
		Payload: []byte("hello " + id),
	}
}

// addInbound registers an inbound session on the local side and returns the
// peer's view of it.
func (h *harness) addInbound(t *testing.T, id string, encrypted bool) seal.Session {
	t.Helper()
	var local, peer seal.Session
	var err error
	if encrypted {
		if local, err = seal.NewAEADSession(id, secret, seal.RoleResponder); err == nil {
			peer, err = seal.NewAEADSession(id, secret, seal.RoleInitiator)
		}
	} else {
		if local, err = seal.NewMACSession(id, secret, seal.RoleResponder); err == nil {
			peer, err = seal.NewMACSession(id, secret, seal.RoleInitiator)
		}
	}
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	h.sessions.byID[id] = session.Inbound{
		Counterparties: session.Counterparties{Source: alice, Destination: bob},
		Session:        local,
	}
	return peer
}

// addOutbound registers an outbound session and returns the peer's view.
func (h *harness) addOutbound(t *testing.T, id string) seal.Session {
	t.Helper()
	local, err := seal.NewMACSession(id, secret, seal.RoleInitiator)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	peer, err := seal.NewMACSession(id, secret, seal.RoleResponder)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	h.sessions.byID[id] = session.Outbound{
		Counterparties: session.Counterparties{Source: bob, Destination: alice},
		Session:        local,
	}
	return peer
}

// sealed wraps body the way the peer would send it over s.
func sealed(t *testing.T, s seal.Session, hdr protocol.CommonHeader, body []byte) *protocol.LinkInMessage {
	t.Helper()
	switch s := s.(type) {
	case seal.Encrypter:
		ct, tag, err := s.Encrypt(hdr, body)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		return &protocol.LinkInMessage{Payload: &protocol.AuthenticatedEncryptedDataMessage{Header: hdr, EncryptedPayload: ct, AuthTag: tag}}
	case seal.Authenticator:
		return &protocol.LinkInMessage{Payload: &protocol.AuthenticatedDataMessage{Header: hdr, Payload: body, AuthTag: s.CreateMAC(hdr, body)}}
	}
	t.Fatalf("session %T cannot seal", s)
	return nil
}

func (h *harness) dataIn(t *testing.T, s seal.Session, hdr protocol.CommonHeader, p protocol.DataMessagePayload) *protocol.LinkInMessage {
	t.Helper()
	body, err := h.wire.EncodeDataPayload(p)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return sealed(t, s, hdr, body)
}

func (h *harness) ackIn(t *testing.T, s seal.Session, hdr protocol.CommonHeader, a protocol.MessageAck) *protocol.LinkInMessage {
	t.Helper()
	body, err := h.wire.EncodeAck(a)
	if err != nil {
		t.Fatalf("encode ack: %v", err)
	}
	return sealed(t, s, hdr, body)
}

// openAck verifies an ack produced by the processor from the peer's side.
func (h *harness) openAck(t *testing.T, peer seal.Session, p protocol.Payload) protocol.MessageAck {
	t.Helper()
	var body []byte
	switch m := p.(type) {
	case *protocol.AuthenticatedDataMessage:
		if err := peer.(seal.Authenticator).VerifyMAC(m.Header, m.Payload, m.AuthTag); err != nil {
			t.Fatalf("ack mac: %v", err)
		}
		body = m.Payload
	case *protocol.AuthenticatedEncryptedDataMessage:
		pt, err := peer.(seal.Encrypter).Decrypt(m.Header, m.EncryptedPayload, m.AuthTag)
		if err != nil {
			t.Fatalf("ack decrypt: %v", err)
		}
		body = pt
	default:
		t.Fatalf("unexpected ack payload %T", p)
	}
	ack, err := h.wire.DecodeAck(body)
	if err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	return ack
}
