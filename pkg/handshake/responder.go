package handshake

import (
	"context"
	"crypto/ed25519"
	"time"

	"go.uber.org/zap"

	"linkmesh/pkg/protocol"
)

// Responder answers InitiatorHello with a signed ResponderHello. It is plugged
// into session.Registry as its Handshaker.
type Responder struct {
	self    protocol.Identity
	priv    ed25519.PrivateKey
	log     *zap.Logger
	now     func() time.Time
	maxSkew time.Duration
}

// ResponderOption configures a Responder.
type ResponderOption func(*Responder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ResponderOption { return func(r *Responder) { r.log = l } }

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) ResponderOption { return func(r *Responder) { r.now = now } }

// WithMaxSkew bounds accepted hello timestamps.
func WithMaxSkew(d time.Duration) ResponderOption { return func(r *Responder) { r.maxSkew = d } }

// NewResponder builds a Responder for the local identity.
func NewResponder(self protocol.Identity, priv ed25519.PrivateKey, opts ...ResponderOption) *Responder {
	r := &Responder{
		self:    self,
		priv:    priv,
		log:     zap.L().Named("handshake"),
		now:     time.Now,
		maxSkew: defaultMaxSkew,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ProcessSessionMessage returns the reply for a handshake message, or nil.
func (r *Responder) ProcessSessionMessage(_ context.Context, msg *protocol.LinkInMessage) *protocol.LinkOutMessage {
	if msg == nil {
		return nil
	}
	hello, ok := msg.Payload.(*protocol.InitiatorHello)
	if !ok {
		if msg.Payload != nil {
			r.log.Debug("handshake step not handled", zap.String("kind", string(msg.Payload.Kind())))
		}
		return nil
	}

	sid := hello.Header.SessionID
	if !hello.Destination.IsZero() && hello.Destination != r.self {
		r.log.Warn("hello addressed to another identity",
			zap.String("session_id", sid),
			zap.Stringer("destination", hello.Destination))
		return nil
	}
	peerKey, err := VerifyHello(hello.Hello, sid, r.maxSkew, r.now())
	if err != nil {
		r.log.Warn("rejected initiator hello", zap.String("session_id", sid), zap.Error(err))
		return nil
	}

	now := r.now()
	mine, err := BuildHello(r.self, sid, r.priv, now)
	if err != nil {
		r.log.Error("cannot build responder hello", zap.String("session_id", sid), zap.Error(err))
		return nil
	}
	r.log.Debug("answering initiator hello",
		zap.String("session_id", sid),
		zap.Stringer("initiator", hello.Source),
		zap.String("peer_key", peerKey))

	return &protocol.LinkOutMessage{
		Header: protocol.LinkOutHeader{Source: r.self, Destination: hello.Source},
		Payload: &protocol.ResponderHello{
			Header: protocol.CommonHeader{
				MessageType:     protocol.MessageTypeResponderHello,
				ProtocolVersion: hello.Header.ProtocolVersion,
				SessionID:       sid,
				Timestamp:       now.UnixMilli(),
			},
			Hello: mine,
		},
	}
}
